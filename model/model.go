package model

import "time"

const (
	TypeText         = "text"
	TypeSingleChoice = "single_choice"
)

type Form struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
	Questions   []Question `json:"questions"`
}

type FormSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	Responses   int       `json:"responses"`
}

type Question struct {
	ID       string   `json:"id,omitempty"`
	Type     string   `json:"type"`
	Text     string   `json:"text"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
	Order    int      `json:"order"`
}

// Submission is one respondent's answer set, keyed by question id.
// Questions left unanswered have no key.
type Submission struct {
	ID      string            `json:"id,omitempty"`
	Time    time.Time         `json:"time"`
	Answers map[string]string `json:"answers"`
}
