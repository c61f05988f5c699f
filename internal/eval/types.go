package eval

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a multi-part message body.
type ContentPart struct {
	Type string `json:"type" yaml:"type"`
	Text string `json:"text,omitempty" yaml:"text,omitempty"`
}

// Content is either plain text or a list of parts. Only plain text counts
// as text content for scoring.
type Content struct {
	Text  string
	Parts []ContentPart
}

// Message is one turn of a transcript.
type Message struct {
	Role    Role    `json:"role" yaml:"role"`
	Content Content `json:"content" yaml:"content"`
}

// TextMessage builds a message with plain text content.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: Content{Text: text}}
}

// IsText reports whether the content is a plain string.
func (c Content) IsText() bool {
	return c.Parts == nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsText() {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Parts)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = Content{Text: text}
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or a list of parts: %w", err)
	}
	if parts == nil {
		parts = []ContentPart{}
	}
	*c = Content{Parts: parts}
	return nil
}

func (c Content) MarshalYAML() (interface{}, error) {
	if c.IsText() {
		return c.Text, nil
	}
	return c.Parts, nil
}

func (c *Content) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*c = Content{Text: node.Value}
		return nil
	case yaml.SequenceNode:
		parts := []ContentPart{}
		if err := node.Decode(&parts); err != nil {
			return fmt.Errorf("decoding content parts: %w", err)
		}
		*c = Content{Parts: parts}
		return nil
	default:
		return fmt.Errorf("line %d: content must be a string or a list of parts", node.Line)
	}
}

// EvaluateResult is the score a grader attached to a row.
type EvaluateResult struct {
	Score  float64 `json:"score" yaml:"score"`
	Reason string  `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Usage records the tokens a rollout spent producing the row.
type Usage struct {
	Model            string `json:"model" yaml:"model"`
	PromptTokens     int    `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens" yaml:"completion_tokens"`
}

// EvaluationRow pairs a transcript with an optional reference answer.
type EvaluationRow struct {
	Messages         []Message       `json:"messages" yaml:"messages"`
	GroundTruth      *string         `json:"ground_truth,omitempty" yaml:"ground_truth,omitempty"`
	EvaluationResult *EvaluateResult `json:"evaluation_result,omitempty" yaml:"evaluation_result,omitempty"`
	Usage            *Usage          `json:"usage,omitempty" yaml:"usage,omitempty"`
}

// Reference returns the ground truth, or "" when the row has none. A missing
// ground truth scores as an empty reference, not as the text "None", both
// here and in the generated Python grader.
func (r *EvaluationRow) Reference() string {
	if r.GroundTruth == nil {
		return ""
	}
	return *r.GroundTruth
}

// LastAssistantText scans the transcript backwards for the last assistant
// message. It returns "" when there is none or its content is not text.
func (r *EvaluationRow) LastAssistantText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		m := r.Messages[i]
		if m.Role != RoleAssistant {
			continue
		}
		if !m.Content.IsText() {
			return ""
		}
		return m.Content.Text
	}
	return ""
}

// Clone returns a copy whose messages can be appended to independently.
func (r *EvaluationRow) Clone() *EvaluationRow {
	c := *r
	c.Messages = append([]Message(nil), r.Messages...)
	return &c
}
