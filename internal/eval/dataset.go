package eval

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DemoRows is the built-in single-row dataset used when no dataset file is
// configured.
func DemoRows() []*EvaluationRow {
	ref := "fuzzy wuzzy had no hair"
	return []*EvaluationRow{
		{
			Messages: []Message{
				TextMessage(RoleUser, "fuzzy wuzzy had no hair"),
				TextMessage(RoleAssistant, "fuzzy wuzzy was a bear"),
			},
			GroundTruth: &ref,
		},
	}
}

// LoadRows reads a dataset. Files ending in .jsonl hold one row per line,
// everything else is parsed as a YAML list of rows.
func LoadRows(path string) ([]*EvaluationRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}
	var rows []*EvaluationRow
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		rows, err = parseJSONL(data)
	} else {
		err = yaml.Unmarshal(data, &rows)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("dataset %s has no rows", path)
	}
	return rows, nil
}

func parseJSONL(data []byte) ([]*EvaluationRow, error) {
	var rows []*EvaluationRow
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var row EvaluationRow
		if err := json.Unmarshal(text, &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, &row)
	}
	return rows, sc.Err()
}
