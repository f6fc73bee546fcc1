package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// checkboxLookahead bounds how many elements after a header may be
	// searched for an active checkbox before the range is rejected.
	checkboxLookahead = 15
	maxInstruction    = 300
	defaultSelect     = 2
)

var (
	headerPattern = regexp.MustCompile(`(?i)questions?\s+(\d{1,2})\s*(?:-|–|—|&ndash;|&#8211;|&mdash;)\s*(\d{1,2})`)
	choosePattern = regexp.MustCompile(`(?i)choose\s+(two|three)\b`)
)

// Header is a "Questions <start>-<end>" range heading found in the content.
type Header struct {
	Pos         int    `json:"pos"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Instruction string `json:"instruction"`
	SelectCount int    `json:"select_count"`
}

// headers is the ordered header list with section lookup by position.
type headers []Header

// findHeaders is the first pass: every range heading in source order.
func findHeaders(d *Document) headers {
	var hs headers
	for p, n := range d.nodes {
		if n.Type != html.TextNode {
			continue
		}
		for _, m := range headerPattern.FindAllStringSubmatch(n.Data, -1) {
			start, _ := strconv.Atoi(m[1])
			end, _ := strconv.Atoi(m[2])
			if start < 1 || end > MaxNumber || start > end {
				continue
			}
			h := Header{Pos: p, Start: start, End: end}
			h.Instruction = instructionAfter(d, p, n.Data)
			h.SelectCount = selectCount(h.Instruction)
			hs = append(hs, h)
		}
	}
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].Pos < hs[j].Pos })
	return hs
}

// instructionAfter collects the text following a header until the first
// input, marker, table or next header.
func instructionAfter(d *Document, p int, own string) string {
	var b strings.Builder
	if loc := headerPattern.FindStringIndex(own); loc != nil {
		b.WriteString(own[loc[1]:])
	}
	for i := p + 1; i < d.Len() && b.Len() < maxInstruction; i++ {
		n := d.Node(i)
		if isAnyInput(n) || isElement(n, atom.Table) || isDragDrop(n) {
			break
		}
		if _, ok := markerNumber(n); ok {
			break
		}
		if n.Type == html.TextNode {
			if headerPattern.MatchString(n.Data) {
				break
			}
			b.WriteString(" ")
			b.WriteString(n.Data)
		}
	}
	s := normalize(b.String())
	if len(s) > maxInstruction {
		cut := maxInstruction
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

func selectCount(instruction string) int {
	m := choosePattern.FindStringSubmatch(instruction)
	if m == nil {
		return defaultSelect
	}
	if strings.EqualFold(m[1], "three") {
		return 3
	}
	return 2
}

// sectionOf is the second pass lookup: the nearest header preceding p, or -1.
func (hs headers) sectionOf(p int) int {
	i := sort.Search(len(hs), func(i int) bool { return hs[i].Pos >= p })
	return i - 1
}

// bounds returns the position span [from, to) covered by section i.
func (hs headers) bounds(i int, docLen int) (int, int) {
	if i < 0 {
		if len(hs) == 0 {
			return 0, docLen
		}
		return 0, hs[0].Pos
	}
	to := docLen
	if i+1 < len(hs) {
		to = hs[i+1].Pos
	}
	return hs[i].Pos, to
}

// hasActiveCheckboxSoon applies the bounded lookahead guard to header i.
func (hs headers) hasActiveCheckboxSoon(d *Document, i int) bool {
	seen := 0
	for p := hs[i].Pos + 1; p < d.Len() && seen < checkboxLookahead; p++ {
		n := d.Node(p)
		if !isElement(n) {
			continue
		}
		seen++
		if isActiveCheckbox(n) {
			return true
		}
	}
	return false
}
