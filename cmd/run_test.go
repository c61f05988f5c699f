package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/rftgrader/internal/grader"
	"github.com/signalnine/rftgrader/internal/result"
	"github.com/signalnine/rftgrader/internal/rft"
)

type fakeService struct {
	status int
	calls  atomic.Int32
	paths  []string
	bodies []map[string]any
}

func (f *fakeService) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.paths = append(f.paths, r.URL.Path)
		var body map[string]any
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		f.bodies = append(f.bodies, body)
		w.WriteHeader(f.status)
		if strings.HasSuffix(r.URL.Path, "/run") {
			fmt.Fprint(w, `{"reward":0.7556,"metadata":{"errors":{"python_grader_runtime_error":false}}}`)
			return
		}
		fmt.Fprint(w, `{"grader":{"type":"python"}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL string) (cfgPath, resultsDir string) {
	t.Helper()
	dir := t.TempDir()
	resultsDir = filepath.Join(dir, "results")
	cfgPath = filepath.Join(dir, "rftgrader.yaml")
	content := fmt.Sprintf("api:\n  base_url: %s\nresults:\n  dir: %s\n", baseURL, resultsDir)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath, resultsDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func TestValidatePrintsResponse(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	svc := &fakeService{status: http.StatusOK}
	srv := svc.start(t)
	cfgPath, _ := writeConfig(t, srv.URL)

	out, err := execute(t, "--config", cfgPath, "validate")
	require.NoError(t, err)
	assert.Equal(t, "validate response: {\"grader\":{\"type\":\"python\"}}\n", out)
	assert.Equal(t, []string{rft.ValidatePath}, svc.paths)
	g := svc.bodies[0]["grader"].(map[string]any)
	assert.Equal(t, grader.TypePython, g["type"])
}

func TestRunWithValidatePrintsBothResponses(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	svc := &fakeService{status: http.StatusOK}
	srv := svc.start(t)
	cfgPath, resultsDir := writeConfig(t, srv.URL)

	out, err := execute(t, "--config", cfgPath, "run", "--validate", "--save")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "validate response: "))
	assert.True(t, strings.HasPrefix(lines[1], "run response: "))
	assert.Equal(t, []string{rft.ValidatePath, rft.RunPath}, svc.paths)

	run := svc.bodies[1]
	assert.Equal(t, "fuzzy wuzzy was a bear", run["model_sample"])
	assert.Equal(t, map[string]any{"reference_answer": "fuzzy wuzzy had no hair"}, run["item"])

	rec, err := result.ReadCallRecord(filepath.Join(resultsDir, "latest", "calls", "run.json"))
	require.NoError(t, err)
	require.NotNil(t, rec.Reward)
	assert.InDelta(t, 0.7556, *rec.Reward, 1e-9)
	_, err = result.ReadCallRecord(filepath.Join(resultsDir, "latest", "calls", "validate.json"))
	assert.NoError(t, err)
}

func TestRunOverridesInputs(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	svc := &fakeService{status: http.StatusOK}
	srv := svc.start(t)
	cfgPath, _ := writeConfig(t, srv.URL)

	_, err := execute(t, "--config", cfgPath, "run", "--reference", "paris", "--sample", "Paris!")
	require.NoError(t, err)
	require.Len(t, svc.bodies, 1)
	assert.Equal(t, "Paris!", svc.bodies[0]["model_sample"])
	assert.Equal(t, map[string]any{"reference_answer": "paris"}, svc.bodies[0]["item"])
}

func TestNonSuccessStatus(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	svc := &fakeService{status: http.StatusBadRequest}
	srv := svc.start(t)
	cfgPath, _ := writeConfig(t, srv.URL)

	out, err := execute(t, "--config", cfgPath, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "validate response: ")

	_, err = execute(t, "--config", cfgPath, "validate", "--strict")
	var statusErr *rft.StatusError
	require.True(t, errors.As(err, &statusErr), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestMissingAPIKeyMakesNoCalls(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	svc := &fakeService{status: http.StatusOK}
	srv := svc.start(t)
	cfgPath, _ := writeConfig(t, srv.URL)

	for _, sub := range []string{"validate", "run"} {
		out, err := execute(t, "--config", cfgPath, sub)
		assert.ErrorIs(t, err, rft.ErrMissingAPIKey, sub)
		assert.Empty(t, out, sub)
	}
	assert.Zero(t, svc.calls.Load())
}

func TestSpecCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t, "https://api.openai.com/v1")

	out, err := execute(t, "--config", cfgPath, "spec")
	require.NoError(t, err)
	var spec grader.GraderSpec
	require.NoError(t, json.Unmarshal([]byte(out), &spec))
	assert.Equal(t, grader.TypePython, spec.Type)
	assert.Contains(t, spec.Source, "def grade(")

	src, err := execute(t, "--config", cfgPath, "spec", "--source")
	require.NoError(t, err)
	assert.Equal(t, spec.Source, src)
}

func TestEvalAndReport(t *testing.T) {
	cfgPath, resultsDir := writeConfig(t, "https://api.openai.com/v1")

	out, err := execute(t, "--config", cfgPath, "eval")
	require.NoError(t, err)
	assert.Equal(t, "rapidfuzz mean score: 0.7556 (1 scored, 0 failed)\n", out)

	_, err = os.Stat(result.RowPath(filepath.Join(resultsDir, "latest"), "rapidfuzz", 0))
	require.NoError(t, err)

	report, err := execute(t, "--config", cfgPath, "report", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, report, "| rapidfuzz | 1 | 0 | 100% | 0.756 |")
}

func TestEvalThreshold(t *testing.T) {
	cfgPath, _ := writeConfig(t, "https://api.openai.com/v1")

	_, err := execute(t, "--config", cfgPath, "eval", "--threshold", "0.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below threshold")

	_, err = execute(t, "--config", cfgPath, "eval", "--threshold", "0.5")
	assert.NoError(t, err)
}

func TestEvalDataset(t *testing.T) {
	cfgPath, _ := writeConfig(t, "https://api.openai.com/v1")

	out, err := execute(t, "--config", cfgPath, "eval", "--dataset", "../testdata/rows.yaml", "--parallel", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "(3 scored, 0 failed)")
}

func TestMissingExplicitConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "spec")
	assert.Error(t, err)
}

func TestListScorers(t *testing.T) {
	cfgPath, _ := writeConfig(t, "https://api.openai.com/v1")

	out, err := execute(t, "--config", cfgPath, "list")
	require.NoError(t, err)
	assert.Equal(t, "Scorers:\n* rapidfuzz (python: rapidfuzz_eval)\n", out)
}

type stubConverter struct {
	spec *grader.GraderSpec
}

func (c stubConverter) Convert(grader.Scorer) (*grader.GraderSpec, error) {
	return c.spec, nil
}

func useConverter(t *testing.T, c grader.Converter) {
	t.Helper()
	prev := converter
	converter = c
	t.Cleanup(func() { converter = prev })
}

func TestCommandsSendInjectedSpec(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	svc := &fakeService{status: http.StatusOK}
	srv := svc.start(t)
	cfgPath, _ := writeConfig(t, srv.URL)

	source := "def grade(sample, item):\n    return 1.0\n"
	useConverter(t, stubConverter{spec: &grader.GraderSpec{Type: grader.TypePython, Source: source}})

	_, err := execute(t, "--config", cfgPath, "run", "--validate")
	require.NoError(t, err)
	require.Len(t, svc.bodies, 2)
	for i, body := range svc.bodies {
		assert.Equal(t, map[string]any{"type": grader.TypePython, "source": source}, body["grader"], "request %d", i)
	}

	out, err := execute(t, "--config", cfgPath, "spec", "--source")
	require.NoError(t, err)
	assert.Equal(t, source, out)
}

func TestEvalRejectsInvalidFlags(t *testing.T) {
	cfgPath, resultsDir := writeConfig(t, "https://api.openai.com/v1")

	tests := []struct {
		name string
		args []string
	}{
		{"threshold above 1", []string{"--threshold", "2"}},
		{"negative threshold", []string{"--threshold=-0.1"}},
		{"unknown rollout", []string{"--rollout", "bogus"}},
		{"chat without model", []string{"--rollout", "chat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"--config", cfgPath, "eval"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid eval flags")
		})
	}
	_, err := os.Stat(filepath.Join(resultsDir, "latest"))
	assert.True(t, os.IsNotExist(err), "no run directory should be created for rejected flags")
}
