package model

// Highlight is a free-floating text annotation made by the user.
// It is not linked to any question.
type Highlight struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Part      int    `json:"part"`
	ExamID    string `json:"exam_id"`
	Timestamp int64  `json:"timestamp"`
}

// AddHighlightRequest is the payload for recording a highlight.
type AddHighlightRequest struct {
	Part int    `json:"part" binding:"required,min=1,max=4"`
	Text string `json:"text" binding:"required,notblank,max=2000"`
}
