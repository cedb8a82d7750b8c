package pipeline

import (
	"strings"

	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/schema"
)

// PageStatus is the outcome of recognizing one page.
type PageStatus string

const (
	PageStatusSuccess PageStatus = "SUCCESS"
	PageStatusError   PageStatus = "ERROR"
)

// Page is the recognition record of one document page.
type Page struct {
	Page          int            `json:"page" yaml:"page"`
	Status        PageStatus     `json:"status" yaml:"status"`
	Content       string         `json:"content" yaml:"content"`
	ContentLength int            `json:"contentLength" yaml:"contentLength"`
	InputTokens   int            `json:"inputTokens,omitempty" yaml:"inputTokens,omitempty"`
	OutputTokens  int            `json:"outputTokens,omitempty" yaml:"outputTokens,omitempty"`
	Error         string         `json:"error,omitempty" yaml:"error,omitempty"`
	Extracted     map[string]any `json:"extracted,omitempty" yaml:"extracted,omitempty"` // per-page fields of this page
}

// PageValue is one per-page extracted value.
type PageValue struct {
	Page  int `json:"page" yaml:"page"`
	Value any `json:"value" yaml:"value"`
}

// Counts tallies successful and failed requests of one phase.
type Counts struct {
	Successful int `json:"successful" yaml:"successful"`
	Failed     int `json:"failed" yaml:"failed"`
}

// Summary describes how a run went. Recognition is nil in extract-only mode
// and Extracted is nil without a schema.
type Summary struct {
	TotalPages  int     `json:"totalPages" yaml:"totalPages"`
	Recognition *Counts `json:"recognition" yaml:"recognition"`
	Extracted   *Counts `json:"extracted" yaml:"extracted"`
}

// LogprobPage holds the token log-probabilities of one response. Page is
// nil for document-level extraction.
type LogprobPage struct {
	Page  *int                     `json:"page" yaml:"page"`
	Value []providers.TokenLogprob `json:"value" yaml:"value"`
}

// Logprobs groups log-probabilities by phase.
type Logprobs struct {
	Recognition []LogprobPage `json:"recognition" yaml:"recognition"`
	Extracted   []LogprobPage `json:"extracted" yaml:"extracted"`
}

// ValidationIssue is a schema violation that survived repair.
type ValidationIssue struct {
	Page         *int `json:"page" yaml:"page"`
	schema.Issue `yaml:",inline"`
}

// Output is the result of Process.
type Output struct {
	CompletionTime int64             `json:"completionTime" yaml:"completionTime"` // milliseconds
	FileName       string            `json:"fileName" yaml:"fileName"`
	InputTokens    int               `json:"inputTokens" yaml:"inputTokens"`
	OutputTokens   int               `json:"outputTokens" yaml:"outputTokens"`
	Pages          []Page            `json:"pages" yaml:"pages"`
	Extracted      map[string]any    `json:"extracted" yaml:"extracted"`
	Logprobs       *Logprobs         `json:"logprobs,omitempty" yaml:"logprobs,omitempty"`
	Issues         []ValidationIssue `json:"validationIssues,omitempty" yaml:"validationIssues,omitempty"`
	Summary        Summary           `json:"summary" yaml:"summary"`
}

// Markdown joins the page contents the way they are written to disk.
func (o *Output) Markdown() string {
	contents := make([]string, len(o.Pages))
	for i, p := range o.Pages {
		contents[i] = p.Content
	}
	return strings.Join(contents, "\n\n")
}
