package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05.000")
	runDir, err := filepath.Abs(filepath.Join(runsDir, stamp))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

func RowPath(runDir, grader string, index int) string {
	return filepath.Join(runDir, "rows", grader, fmt.Sprintf("row-%04d.json", index))
}

func WriteRowResult(runDir string, r *RowResult) error {
	return writeJSON(RowPath(runDir, r.Grader, r.Index), r)
}

func ReadRowResult(path string) (*RowResult, error) {
	var r RowResult
	if err := readJSON(path, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// WriteCallRecord stores a remote response as calls/<name>.json.
func WriteCallRecord(runDir, name string, rec *CallRecord) error {
	return writeJSON(filepath.Join(runDir, "calls", name+".json"), rec)
}

func ReadCallRecord(path string) (*CallRecord, error) {
	var rec CallRecord
	if err := readJSON(path, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
