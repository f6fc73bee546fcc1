// Package resolver maps the display numbers of one Listening part to
// backend question identifiers.
package resolver

import (
	"sort"
	"strconv"

	"github.com/stemsi/ielts-listening/internal/model"
	"github.com/stemsi/ielts-listening/internal/parser"
)

// Entry is one display number and the question it belongs to.
type Entry struct {
	Number     int    `json:"number"`
	QuestionID string `json:"question_id"`
}

// Map is the bidirectional number/identifier association of a single part.
// It is built once per part load and never mutated afterwards.
type Map struct {
	Part       int
	Start, End int

	byNumber map[int]string
	byID     map[string]int
	// Unresolved lists the numbers of the part that no question claimed.
	Unresolved []int
}

// Build resolves the numbers of part from the section's questions.
//
// Typed questions are sorted by identifier and numbered sequentially from
// the first number of the part. A question whose own content carries a
// marker for a number nobody holds is then moved to that number. Numbers
// still unmapped are reported in Unresolved instead of guessed.
func Build(section *model.Section, part int) *Map {
	start, end := model.PartRange(part)
	m := &Map{
		Part:     part,
		Start:    start,
		End:      end,
		byNumber: make(map[int]string),
		byID:     make(map[string]int),
	}
	if section == nil {
		m.fillUnresolved()
		return m
	}

	typed := make([]model.Question, 0, len(section.Questions))
	for _, q := range section.Questions {
		if !q.Type.IsContainer() {
			typed = append(typed, q)
		}
	}
	sort.SliceStable(typed, func(i, j int) bool { return lessID(typed[i].ID, typed[j].ID) })

	next := start
	var leftover []model.Question
	for _, q := range typed {
		if _, dup := m.byID[q.ID]; dup {
			continue
		}
		if next > end {
			leftover = append(leftover, q)
			continue
		}
		m.register(next, q.ID)
		next++
	}

	// Embedded markers move a question to the number its content shows
	// when that number is still free. Walking backwards lets a run of
	// shifted questions settle in a single sweep; the loop repeats while
	// anything moves.
	all := append(typed[:len(typed):len(typed)], leftover...)
	for moved := true; moved; {
		moved = false
		for i := len(all) - 1; i >= 0; i-- {
			q := all[i]
			n, ok := firstMarkerIn(q.Content, start, end)
			if !ok {
				continue
			}
			if cur, mapped := m.byID[q.ID]; mapped && cur == n {
				continue
			}
			if _, claimed := m.byNumber[n]; claimed {
				continue
			}
			if cur, mapped := m.byID[q.ID]; mapped {
				delete(m.byNumber, cur)
			}
			m.register(n, q.ID)
			moved = true
		}
	}

	m.fillUnresolved()
	return m
}

func (m *Map) register(number int, id string) {
	m.byNumber[number] = id
	m.byID[id] = number
}

func (m *Map) fillUnresolved() {
	m.Unresolved = m.Unresolved[:0]
	for n := m.Start; n <= m.End; n++ {
		if _, ok := m.byNumber[n]; !ok {
			m.Unresolved = append(m.Unresolved, n)
		}
	}
}

// ID returns the question identifier of a display number.
func (m *Map) ID(number int) (string, bool) {
	id, ok := m.byNumber[number]
	return id, ok
}

// Number returns the display number of a question identifier.
func (m *Map) Number(id string) (int, bool) {
	n, ok := m.byID[id]
	return n, ok
}

// Contains reports whether number belongs to this part's range.
func (m *Map) Contains(number int) bool {
	return number >= m.Start && number <= m.End
}

// IsUnresolved reports whether number is in range but has no question.
func (m *Map) IsUnresolved(number int) bool {
	if !m.Contains(number) {
		return false
	}
	_, ok := m.byNumber[number]
	return !ok
}

// Len returns the number of mapped entries.
func (m *Map) Len() int {
	return len(m.byNumber)
}

// Entries returns the mapping ordered by display number.
func (m *Map) Entries() []Entry {
	out := make([]Entry, 0, len(m.byNumber))
	for n, id := range m.byNumber {
		out = append(out, Entry{Number: n, QuestionID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// lessID orders identifiers numerically when both are integers.
func lessID(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// firstMarkerIn returns the first in-range marker number of a payload.
func firstMarkerIn(content string, start, end int) (int, bool) {
	if content == "" {
		return 0, false
	}
	doc, err := parser.ParseDocument(content)
	if err != nil {
		return 0, false
	}
	for _, n := range doc.Markers() {
		if n >= start && n <= end {
			return n, true
		}
	}
	return 0, false
}
