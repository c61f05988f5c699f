// Package sandbox runs a generated Python grader inside a local container
// so a spec can be checked before it is sent to the remote service.
package sandbox

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalnine/rftgrader/internal/grader"
)

const (
	DefaultImage   = "python:3.12-slim"
	DefaultTimeout = 300 * time.Second

	graderFile = "grader.py"
	runnerFile = "run.py"
	inputFile  = "input.json"
	resultFile = "result.json"
)

// ErrNoResult means the grader exited without writing a score.
var ErrNoResult = errors.New("grader produced no result")

//go:embed run.py
var runnerScript []byte

// Packages installed before the grader runs.
var requirements = []string{"rapidfuzz"}

type Options struct {
	Image   string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Result is the outcome of one local grade(sample, item) call.
type Result struct {
	Score    float64
	ExitCode int
	TimedOut bool
	Duration time.Duration
	Logs     string
}

type input struct {
	Sample map[string]any `json:"sample"`
	Item   map[string]any `json:"item"`
}

type output struct {
	Score *float64 `json:"score"`
}

// Grade executes spec's grade(sample, item) in a container. A non-zero exit
// or timeout is reported in Result together with ErrNoResult.
func Grade(ctx context.Context, spec *grader.GraderSpec, sample, item map[string]any, opts Options) (*Result, error) {
	if err := grader.ValidateSpec(spec); err != nil {
		return nil, err
	}
	if opts.Image == "" {
		opts.Image = DefaultImage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	workDir, err := os.MkdirTemp("", "rftgrader-sandbox-")
	if err != nil {
		return nil, fmt.Errorf("creating sandbox workspace: %w", err)
	}
	defer os.RemoveAll(workDir)

	if err := prepareWorkspace(workDir, spec, sample, item); err != nil {
		return nil, err
	}

	script := fmt.Sprintf("pip install -q --disable-pip-version-check %s && python /workspace/%s",
		strings.Join(requirements, " "), runnerFile)
	run, err := RunContainer(ctx, &RunOpts{
		Image:   opts.Image,
		Command: []string{"sh", "-c", script},
		WorkDir: workDir,
		Env:     map[string]string{"PYTHONDONTWRITEBYTECODE": "1"},
		Timeout: opts.Timeout,
		Logger:  opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		ExitCode: run.ExitCode,
		TimedOut: run.TimedOut,
		Duration: run.Duration,
		Logs:     run.Logs,
	}
	if run.ExitCode != 0 {
		return res, fmt.Errorf("%w: exit code %d", ErrNoResult, run.ExitCode)
	}
	score, err := readResult(workDir)
	if err != nil {
		return res, err
	}
	res.Score = score
	return res, nil
}

func prepareWorkspace(dir string, spec *grader.GraderSpec, sample, item map[string]any) error {
	if sample == nil {
		sample = map[string]any{}
	}
	if item == nil {
		item = map[string]any{}
	}
	payload, err := json.MarshalIndent(input{Sample: sample, Item: item}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling grader input: %w", err)
	}
	files := map[string][]byte{
		graderFile: []byte(spec.Source),
		runnerFile: runnerScript,
		inputFile:  payload,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	// The container may run as a different uid.
	return os.Chmod(dir, 0o777)
}

func readResult(dir string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(dir, resultFile))
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNoResult
	}
	if err != nil {
		return 0, fmt.Errorf("reading grader result: %w", err)
	}
	var out output
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("parsing grader result: %w", err)
	}
	if out.Score == nil {
		return 0, ErrNoResult
	}
	return *out.Score, nil
}
