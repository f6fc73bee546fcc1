package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmitTrigger records what caused a submission.
type SubmitTrigger string

const (
	SubmitTriggerManual SubmitTrigger = "MANUAL"
	SubmitTriggerAuto   SubmitTrigger = "AUTO"
)

// ListeningAttempt is the journal entry written after a successful submission.
type ListeningAttempt struct {
	ID            uuid.UUID     `json:"id"`
	ExamID        string        `json:"exam_id"`
	UserID        string        `json:"user_id"`
	ResultID      string        `json:"result_id"`
	Trigger       SubmitTrigger `json:"trigger"`
	AnsweredCount int           `json:"answered_count"`
	SubmittedAt   time.Time     `json:"submitted_at"`
}

// SetAnswerRequest is the payload for a fill-in-blank or single-selection answer.
type SetAnswerRequest struct {
	Value string `json:"value" binding:"max=500"`
}

// CheckboxToggleRequest toggles one option of a checkbox group.
type CheckboxToggleRequest struct {
	Start int    `json:"start" binding:"required,min=1,max=40"`
	Value string `json:"value" binding:"required,max=20"`
}

// DragRequest moves a drag-drop option. From and To are display numbers;
// 0 means the option pool.
type DragRequest struct {
	Part  int    `json:"part" binding:"required,min=1,max=4"`
	Value string `json:"value" binding:"required,max=200"`
	From  int    `json:"from" binding:"min=0,max=40"`
	To    int    `json:"to" binding:"min=0,max=40"`
}
