package model

import (
	"fmt"
	"strconv"
	"strings"
)

// PartCount is the fixed number of parts in a Listening exam.
const (
	PartCount        = 4
	QuestionsPerPart = 10
)

// Exam is the read-only structure of one Listening test as fetched from the backend.
type Exam struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
	// AudioDuration is the total audio length formatted MM:SS.
	AudioDuration string `json:"audio_duration,omitempty"`
}

// Section is one part of the exam.
type Section struct {
	Part      int        `json:"part"`
	Questions []Question `json:"questions"`
}

// Section returns the section for the given part, or nil when the exam has none.
func (e *Exam) Section(part int) *Section {
	for i := range e.Sections {
		if e.Sections[i].Part == part {
			return &e.Sections[i]
		}
	}
	return nil
}

// PartRange returns the inclusive display-number range of a part.
func PartRange(part int) (start, end int) {
	return (part-1)*QuestionsPerPart + 1, part * QuestionsPerPart
}

// PartOf returns the part owning a display number, or 0 when out of range.
func PartOf(number int) int {
	if number < 1 || number > PartCount*QuestionsPerPart {
		return 0
	}
	return (number-1)/QuestionsPerPart + 1
}

// ValidPart reports whether part is one of 1..4.
func ValidPart(part int) bool {
	return part >= 1 && part <= PartCount
}

// ParseDuration converts an "MM:SS" audio length into seconds.
// Minutes may exceed 59.
func ParseDuration(s string) (int, error) {
	mm, ss, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid duration %q: expected MM:SS", s)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes < 0 {
		return 0, fmt.Errorf("invalid minutes in %q", s)
	}
	seconds, err := strconv.Atoi(ss)
	if err != nil || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("invalid seconds in %q", s)
	}
	return minutes*60 + seconds, nil
}
