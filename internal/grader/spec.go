package grader

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const TypePython = "python"

var (
	ErrNoPythonSource = errors.New("scorer has no python source")
	ErrInvalidSpec    = errors.New("invalid grader spec")
)

// GraderSpec is the payload the fine-tuning grader endpoints accept.
type GraderSpec struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// Converter turns a scorer into a grader spec.
type Converter interface {
	Convert(s Scorer) (*GraderSpec, error)
}

//go:embed grader.py.tmpl
var pythonTemplateText string

//go:embed grader_spec.schema.json
var specSchemaText string

var (
	pythonTemplate = template.Must(template.New("grader.py").Parse(pythonTemplateText))
	specSchema     = jsonschema.MustCompileString("grader_spec.schema.json", specSchemaText)
)

// PythonConverter wraps a scorer's Python function in a grade(sample, item)
// entrypoint. sample["output_text"] becomes the assistant message and
// item["reference_answer"] the ground truth.
type PythonConverter struct{}

var _ Converter = PythonConverter{}

func (PythonConverter) Convert(s Scorer) (*GraderSpec, error) {
	sp, ok := s.(SourceProvider)
	if !ok {
		return nil, fmt.Errorf("%s: %w", s.Name(), ErrNoPythonSource)
	}
	fn := sp.PythonFunc()
	if fn.Name == "" || fn.Body == "" {
		return nil, fmt.Errorf("%s: %w", s.Name(), ErrNoPythonSource)
	}

	var buf bytes.Buffer
	err := pythonTemplate.Execute(&buf, struct {
		Scorer string
		Func   string
		Body   string
	}{s.Name(), fn.Name, fn.Body})
	if err != nil {
		return nil, fmt.Errorf("rendering %s grader: %w", s.Name(), err)
	}

	spec := &GraderSpec{Type: TypePython, Source: buf.String()}
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// ValidateSpec checks spec against the grader spec JSON schema.
func ValidateSpec(spec *GraderSpec) error {
	if spec == nil {
		return fmt.Errorf("%w: nil spec", ErrInvalidSpec)
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encoding spec: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding spec: %w", err)
	}
	if err := specSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return nil
}
