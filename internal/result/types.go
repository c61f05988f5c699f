package result

import "time"

// RowResult is what the eval loop stores for one scored row.
type RowResult struct {
	Grader     string  `json:"grader"`
	Index      int     `json:"index"`
	Prediction string  `json:"prediction"`
	Reference  string  `json:"reference"`
	Score      float64 `json:"score"`
	Error      string  `json:"error,omitempty"`
	Model      string  `json:"model,omitempty"`

	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// Failed reports whether the row could not be scored.
func (r *RowResult) Failed() bool {
	return r.Error != ""
}

// CallRecord is a stored validate or run response.
type CallRecord struct {
	Endpoint        string    `json:"endpoint"`
	StatusCode      int       `json:"status_code"`
	Body            string    `json:"body"`
	RequestID       string    `json:"request_id,omitempty"`
	ClientRequestID string    `json:"client_request_id,omitempty"`
	Reward          *float64  `json:"reward,omitempty"`
	Errors          []string  `json:"errors,omitempty"`
	At              time.Time `json:"at"`
}
