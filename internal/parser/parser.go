// Package parser turns a Listening question payload into typed question
// descriptors. It never mutates the parse tree and never touches answers,
// so rendering can re-walk the same Document in source order.
package parser

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind is the widget type of a descriptor.
type Kind string

const (
	KindFillBlank      Kind = "fill_blank"
	KindMultipleChoice Kind = "multiple_choice"
	KindCheckboxGroup  Kind = "checkbox_group"
	KindTableRadio     Kind = "table_radio"
	KindDragDrop       Kind = "drag_drop"
)

// Option is one selectable choice.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Anchor is an input node the renderer replaces with a live widget.
type Anchor struct {
	Pos    int    `json:"pos"`
	Number int    `json:"number"`
	Value  string `json:"value,omitempty"`
}

// Row is one question of a table-radio block.
type Row struct {
	Number  int      `json:"number"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// Zone is a drop-zone position and the display number it fills.
type Zone struct {
	Pos    int `json:"pos"`
	Number int `json:"number"`
}

// Descriptor is the normalised form of one embedded question or question group.
type Descriptor struct {
	Kind Kind `json:"kind"`

	// Pos is the source position of the first node the descriptor covers.
	Pos    int    `json:"pos"`
	Number int    `json:"number"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Text   string `json:"text,omitempty"`

	Options     []Option `json:"options,omitempty"`
	SelectCount int      `json:"select_count,omitempty"`
	Rows        []Row    `json:"rows,omitempty"`

	Zones   []Zone `json:"zones,omitempty"`
	PoolPos int    `json:"pool_pos,omitempty"`
	// Content is the original drag-drop markup, drop zones inline.
	Content string `json:"content,omitempty"`

	Anchors []Anchor `json:"anchors,omitempty"`

	InTable     bool     `json:"in_table,omitempty"`
	TableNumber int      `json:"table_number,omitempty"`
	ResolvedBy  Strategy `json:"resolved_by,omitempty"`
}

// Result is the parser output for one payload.
type Result struct {
	Doc         *Document
	Headers     []Header
	Descriptors []Descriptor
}

// Parse extracts descriptors from raw. fallback is the display number used
// when a blank has no resolvable marker, normally the first number of the
// rendered question group.
func Parse(raw string, fallback int) (*Result, error) {
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, err
	}

	p := &pass{
		doc:      doc,
		headers:  findHeaders(doc),
		fallback: fallback,
		consumed: make(map[*html.Node]bool),
		mc:       make(map[int]int),
		groups:   make(map[int]bool),
		seen:     make(map[string]int),
	}
	p.run()

	sort.SliceStable(p.out, func(i, j int) bool { return p.out[i].Pos < p.out[j].Pos })

	return &Result{Doc: doc, Headers: p.headers, Descriptors: p.out}, nil
}

// pass holds the state of the second, associating walk.
type pass struct {
	doc      *Document
	headers  headers
	fallback int
	consumed map[*html.Node]bool
	out      []Descriptor
	// mc maps a multiple-choice display number to its index in out.
	mc map[int]int
	// groups records sections whose checkbox group was already built.
	groups map[int]bool
	// seen suppresses duplicate range descriptors from repeated headers.
	seen map[string]int
}

func (p *pass) run() {
	for pos, n := range p.doc.nodes {
		if p.consumed[n] || n.Type != html.ElementNode {
			continue
		}
		switch {
		case isDragDrop(n):
			p.dragDrop(pos, n)
		case isElement(n, atom.Table):
			p.table(pos, n)
		case isActiveCheckbox(n):
			p.checkboxGroup(pos)
		case isRadio(n):
			p.multipleChoice(pos, n)
		case isTextInput(n):
			p.blank(pos, n)
		}
	}
}

func (p *pass) consume(n *html.Node) {
	p.consumed[n] = true
}

func (p *pass) consumeTree(n *html.Node) {
	p.consume(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.consumeTree(c)
	}
}

// sectionDefault returns the number a section starts at, or the caller fallback.
func (p *pass) sectionDefault(section int) int {
	if section >= 0 {
		return p.headers[section].Start
	}
	return p.fallback
}

// emit appends d unless an identical range descriptor was already emitted,
// in which case its anchors are merged into the first one.
func (p *pass) emit(d Descriptor) {
	if d.Kind == KindCheckboxGroup || d.Kind == KindTableRadio || d.Kind == KindDragDrop {
		key := dedupeKey(d)
		if i, ok := p.seen[key]; ok {
			p.out[i].Anchors = append(p.out[i].Anchors, d.Anchors...)
			p.out[i].Zones = append(p.out[i].Zones, d.Zones...)
			return
		}
		p.seen[key] = len(p.out)
	}
	p.out = append(p.out, d)
}

func dedupeKey(d Descriptor) string {
	var b strings.Builder
	b.WriteString(string(d.Kind))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(d.Start))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(d.End))
	b.WriteString("|")
	b.WriteString(d.Text)
	for _, o := range d.Options {
		b.WriteString("|")
		b.WriteString(o.Value)
		b.WriteString("=")
		b.WriteString(o.Label)
	}
	for _, r := range d.Rows {
		b.WriteString("|r")
		b.WriteString(strconv.Itoa(r.Number))
		b.WriteString(r.Text)
	}
	return b.String()
}

// blank handles a free-standing text input.
func (p *pass) blank(pos int, n *html.Node) {
	p.consume(n)
	section := p.headers.sectionOf(pos)
	r := newNumberResolver(p.doc.Root, isTextInput).resolve(n, p.fallbackFor(section))
	p.out = append(p.out, Descriptor{
		Kind:       KindFillBlank,
		Pos:        pos,
		Number:     r.Number,
		Start:      r.Number,
		End:        r.Number,
		Anchors:    []Anchor{{Pos: pos, Number: r.Number}},
		ResolvedBy: r.By,
	})
}

// fallbackFor prefers the caller's container number, then the section start.
func (p *pass) fallbackFor(section int) int {
	if p.fallback > 0 {
		return p.fallback
	}
	return p.sectionDefault(section)
}

// Numbers returns every display number referenced by the descriptors, ascending.
func (r *Result) Numbers() []int {
	set := make(map[int]bool)
	for _, d := range r.Descriptors {
		for _, a := range d.Anchors {
			set[a.Number] = true
		}
		for _, z := range d.Zones {
			set[z.Number] = true
		}
		if d.Kind == KindCheckboxGroup {
			for n := d.Start; n <= d.End; n++ {
				set[n] = true
			}
		}
	}
	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// CheckboxGroup returns the checkbox group whose range starts at start.
func (r *Result) CheckboxGroup(start int) *Descriptor {
	for i := range r.Descriptors {
		d := &r.Descriptors[i]
		if d.Kind == KindCheckboxGroup && d.Start == start {
			return d
		}
	}
	return nil
}

// DragDropFor returns the drag-drop descriptor that owns a display number.
func (r *Result) DragDropFor(number int) *Descriptor {
	for i := range r.Descriptors {
		d := &r.Descriptors[i]
		if d.Kind != KindDragDrop {
			continue
		}
		if number >= d.Start && number <= d.End {
			return d
		}
		for _, z := range d.Zones {
			if z.Number == number {
				return d
			}
		}
	}
	return nil
}

// DragDropWithOption returns the drag-drop descriptor offering value.
func (r *Result) DragDropWithOption(value string) *Descriptor {
	for i := range r.Descriptors {
		d := &r.Descriptors[i]
		if d.Kind != KindDragDrop {
			continue
		}
		for _, o := range d.Options {
			if o.Value == value {
				return d
			}
		}
	}
	return nil
}
