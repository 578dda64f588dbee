// CLAUDE:SUMMARY External answer oracle: dropdown disambiguation and open-question answering, with HTTP and Gemini backends and a degrading guard.
// Package oracle asks an external service to pick a dropdown option or to
// draft the answer to an open question. Callers go through Guarded, which
// bounds every call and turns any failure into an empty result.
package oracle

import (
	"context"
	"strings"
)

// DropdownRequest asks which option best fits UserValue.
type DropdownRequest struct {
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	UserValue string   `json:"userValue"`
	Context   string   `json:"context,omitempty"`
}

// DropdownResult names the chosen option. An empty Match means none fits.
type DropdownResult struct {
	Match      string `json:"match"`
	Confidence string `json:"confidence,omitempty"`
	Reasoning  string `json:"reasoning,omitempty"`
}

// QuestionRequest asks for an answer to an application question.
type QuestionRequest struct {
	Question       string            `json:"question"`
	FieldType      string            `json:"fieldType"`
	UserProfile    map[string]string `json:"userProfile,omitempty"`
	JobDescription string            `json:"jobDescription,omitempty"`
	MaxLength      int               `json:"maxLength,omitempty"`
}

// AnswerResult is a drafted answer. An empty Answer means none.
type AnswerResult struct {
	Answer     string `json:"answer"`
	Confidence string `json:"confidence,omitempty"`
}

// Oracle is the external request/response service.
type Oracle interface {
	MatchDropdown(ctx context.Context, req DropdownRequest) (DropdownResult, error)
	AnswerQuestion(ctx context.Context, req QuestionRequest) (AnswerResult, error)
}

// Nop never answers.
type Nop struct{}

func (Nop) MatchDropdown(context.Context, DropdownRequest) (DropdownResult, error) {
	return DropdownResult{}, nil
}

func (Nop) AnswerQuestion(context.Context, QuestionRequest) (AnswerResult, error) {
	return AnswerResult{}, nil
}

// NoneMatch is the sentinel some backends return instead of an empty match.
const NoneMatch = "NONE"

// FixMatch maps match onto options: verbatim first, then ignoring case.
// It returns "" when match is not one of options.
func FixMatch(match string, options []string) string {
	if match == "" || match == NoneMatch {
		return ""
	}
	for _, o := range options {
		if o == match {
			return o
		}
	}
	for _, o := range options {
		if strings.EqualFold(o, match) {
			return o
		}
	}
	return ""
}

// lengthGuide is the answer length asked of generators per field type.
func lengthGuide(fieldType string) string {
	if fieldType == "textarea" {
		return "2-4 sentences"
	}
	return "1-2 sentences"
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
