package model

import (
	"fmt"
	"strings"
)

// ValidationError is a user-facing rejection. The operation that produced
// it has made no state change.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// FilterOptions drops blank and whitespace-only option strings.
func FilterOptions(options []string) []string {
	filtered := make([]string, 0, len(options))
	for _, opt := range options {
		if strings.TrimSpace(opt) != "" {
			filtered = append(filtered, opt)
		}
	}
	return filtered
}

// ValidateForm checks a form definition before it is persisted:
// non-blank title, at least one question, and every question well formed.
func ValidateForm(form Form) error {
	if strings.TrimSpace(form.Title) == "" {
		return invalidf("form title must not be blank")
	}
	if len(form.Questions) == 0 {
		return invalidf("a form requires at least one question")
	}
	for i, q := range form.Questions {
		if err := ValidateQuestion(q); err != nil {
			return invalidf("question %d: %s", i+1, err)
		}
	}
	return nil
}

func ValidateQuestion(q Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return invalidf("text must not be blank")
	}
	switch q.Type {
	case TypeText:
	case TypeSingleChoice:
		if len(FilterOptions(q.Options)) == 0 {
			return invalidf("at least one option is required")
		}
	default:
		return invalidf("unknown question type %q", q.Type)
	}
	return nil
}

// ValidateAnswers checks a candidate answer set against the form's questions
// in schema order. It fails fast on the first required question whose answer
// is missing or blank after trimming. Single-choice values are accepted
// verbatim, without matching them against the option list.
func ValidateAnswers(questions []Question, answers map[string]string) error {
	for _, q := range questions {
		if !q.Required {
			continue
		}
		if strings.TrimSpace(answers[q.ID]) == "" {
			return invalidf("missing answer to required question: %s", q.Text)
		}
	}
	return nil
}
