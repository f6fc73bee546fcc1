// Package progress summarises answer completion per part for the navigation bar.
package progress

import (
	"github.com/stemsi/ielts-listening/internal/model"
	"github.com/stemsi/ielts-listening/internal/render"
)

// Question is one cell of the navigation bar.
type Question struct {
	Number   int    `json:"number"`
	Anchor   string `json:"anchor"`
	Answered bool   `json:"answered"`
	Resolved bool   `json:"resolved"`
	Hard     bool   `json:"hard,omitempty"`
}

// Part is the completion of one part.
type Part struct {
	Part      int        `json:"part"`
	Start     int        `json:"start"`
	End       int        `json:"end"`
	Answered  int        `json:"answered"`
	Total     int        `json:"total"`
	Questions []Question `json:"questions"`
}

// Report is the whole navigation bar.
type Report struct {
	Parts    []Part `json:"parts"`
	Answered int    `json:"answered"`
	Total    int    `json:"total"`
}

// Build reads completion for every part. numbers returns the number map of a
// part, or nil when the part is not available.
func Build(numbers func(part int) render.Numbers, answers render.Answers, hard map[int]bool) Report {
	var rep Report
	for part := 1; part <= model.PartCount; part++ {
		start, end := model.PartRange(part)
		p := Part{Part: part, Start: start, End: end, Total: end - start + 1}
		nums := numbers(part)

		for n := start; n <= end; n++ {
			q := Question{Number: n, Anchor: render.QuestionAnchor(n), Hard: hard[n]}
			if nums != nil {
				if id, ok := nums.ID(n); ok {
					q.Resolved = true
					q.Answered = model.Complete(answers.Answer(id))
				}
			}
			if q.Answered {
				p.Answered++
			}
			p.Questions = append(p.Questions, q)
		}

		rep.Parts = append(rep.Parts, p)
		rep.Answered += p.Answered
		rep.Total += p.Total
	}
	return rep
}
