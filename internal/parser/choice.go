package parser

import (
	"strings"

	"golang.org/x/net/html"
)

// multipleChoice attaches a radio option to the question owning the nearest
// preceding marker, creating the descriptor on its first option.
func (p *pass) multipleChoice(pos int, n *html.Node) {
	p.consume(n)
	section := p.headers.sectionOf(pos)
	r := newNumberResolver(p.doc.Root, nil).resolve(n, p.sectionDefault(section))
	label := optionLabel(n)

	if i, ok := p.mc[r.Number]; ok {
		d := &p.out[i]
		value := optionValue(n, label, len(d.Options))
		d.Options = append(d.Options, Option{Value: value, Label: label})
		d.Anchors = append(d.Anchors, Anchor{Pos: pos, Number: r.Number, Value: value})
		return
	}

	value := optionValue(n, label, 0)
	p.mc[r.Number] = len(p.out)
	p.out = append(p.out, Descriptor{
		Kind:       KindMultipleChoice,
		Pos:        pos,
		Number:     r.Number,
		Start:      r.Number,
		End:        r.Number,
		Text:       questionText(r.Marker),
		Options:    []Option{{Value: value, Label: label}},
		Anchors:    []Anchor{{Pos: pos, Number: r.Number, Value: value}},
		ResolvedBy: r.By,
	})
}

// questionText is the text of the block holding a marker, without the marker.
func questionText(marker *html.Node) string {
	if marker == nil || marker.Parent == nil {
		return ""
	}
	block := normalize(textOf(marker.Parent))
	return strings.TrimSpace(strings.TrimPrefix(block, normalize(textOf(marker))))
}

// checkboxGroup builds the group for the section holding the checkbox at pos.
// The section must have a header and pass the lookahead guard; otherwise the
// checkbox stays static content.
func (p *pass) checkboxGroup(pos int) {
	section := p.headers.sectionOf(pos)
	if section < 0 || p.groups[section] || !p.headers.hasActiveCheckboxSoon(p.doc, section) {
		p.consume(p.doc.Node(pos))
		return
	}
	p.groups[section] = true

	h := p.headers[section]
	d := Descriptor{
		Kind:        KindCheckboxGroup,
		Pos:         pos,
		Number:      h.Start,
		Start:       h.Start,
		End:         h.End,
		Text:        h.Instruction,
		SelectCount: h.SelectCount,
	}
	if size := h.End - h.Start + 1; d.SelectCount > size {
		d.SelectCount = size
	}

	from, to := p.headers.bounds(section, p.doc.Len())
	for q := from; q < to; q++ {
		n := p.doc.Node(q)
		if p.consumed[n] || !isActiveCheckbox(n) {
			continue
		}
		p.consume(n)
		label := optionLabel(n)
		value := optionValue(n, label, len(d.Options))
		d.Options = append(d.Options, Option{Value: value, Label: label})
		d.Anchors = append(d.Anchors, Anchor{Pos: q, Number: h.Start, Value: value})
	}

	p.emit(d)
}
