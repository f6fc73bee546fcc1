package model

import "strings"

// Question is one backend question. Its ID never changes across a session.
type Question struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Content string       `json:"content"`
}

type QuestionType string

const (
	QuestionTypeMainText       QuestionType = "main_text"
	QuestionTypeFillBlank      QuestionType = "fill_blank"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeCheckboxGroup  QuestionType = "checkbox_group"
	QuestionTypeTableRadio     QuestionType = "table_radio"
	QuestionTypeDragDrop       QuestionType = "drag_drop"
)

// IsContainer reports whether the question only carries embedded sub-question markup.
func (t QuestionType) IsContainer() bool {
	return t == QuestionTypeMainText
}

// Complete reports whether an answer value counts as answered.
func Complete(answer string) bool {
	return strings.TrimSpace(answer) != ""
}
