package parser

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// table handles radio grids and blanks embedded in a table. The table
// itself is kept intact; only its inputs become widgets.
func (p *pass) table(pos int, t *html.Node) {
	p.consume(t)
	section := p.headers.sectionOf(pos)

	if containsInput(t, isRadio) {
		p.tableRadio(pos, t, section)
	}
	if containsInput(t, isTextInput) {
		p.tableBlanks(pos, t, section)
	}
}

// tableBlanks emits one fill-in-blank descriptor per input, each resolved
// within the table, all sharing the table's first display number.
func (p *pass) tableBlanks(pos int, t *html.Node, section int) {
	r := newNumberResolver(t, isTextInput)
	first := len(p.out)
	tableNumber := 0

	for q := pos + 1; q < p.doc.end(t); q++ {
		n := p.doc.Node(q)
		if p.consumed[n] || !isTextInput(n) {
			continue
		}
		p.consume(n)
		res := r.resolve(n, p.fallbackFor(section))
		if tableNumber == 0 || res.Number < tableNumber {
			tableNumber = res.Number
		}
		p.out = append(p.out, Descriptor{
			Kind:       KindFillBlank,
			Pos:        q,
			Number:     res.Number,
			Start:      res.Number,
			End:        res.Number,
			Anchors:    []Anchor{{Pos: q, Number: res.Number}},
			InTable:    true,
			ResolvedBy: res.By,
		})
	}

	for i := first; i < len(p.out); i++ {
		p.out[i].TableNumber = tableNumber
	}
}

// tableRadio builds a table-radio descriptor. The range comes from the
// section header, or from the lowest and highest markers in the cells.
func (p *pass) tableRadio(pos int, t *html.Node, section int) {
	rows := p.tableRows(pos, t)
	labels := columnLabels(rows)

	type pending struct {
		tr     *html.Node
		number int
	}
	var radioRows []pending
	low, high := 0, 0
	for _, tr := range rows {
		if !containsInput(tr, isRadio) {
			continue
		}
		num := 0
		if m := firstMarkerIn(tr); m != nil {
			num, _ = markerNumber(m)
			if low == 0 || num < low {
				low = num
			}
			if num > high {
				high = num
			}
		}
		radioRows = append(radioRows, pending{tr: tr, number: num})
	}
	if len(radioRows) == 0 {
		return
	}

	start, end := low, high
	if section >= 0 {
		start, end = p.headers[section].Start, p.headers[section].End
	} else if start == 0 {
		start = p.fallback
		if start < 1 {
			start = 1
		}
		end = start + len(radioRows) - 1
	}

	d := Descriptor{
		Kind:   KindTableRadio,
		Pos:    pos,
		Number: start,
		Start:  start,
		End:    end,
	}
	if section >= 0 {
		d.Text = p.headers[section].Instruction
	}

	for i, pr := range radioRows {
		number := pr.number
		if number == 0 {
			number = start + i
		}
		row := Row{Number: number, Text: rowText(pr.tr)}
		col := 0
		for cell := pr.tr.FirstChild; cell != nil; cell = cell.NextSibling {
			if !isElement(cell, atom.Td, atom.Th) {
				continue
			}
			for q := p.doc.Pos(cell); q < p.doc.end(cell); q++ {
				n := p.doc.Node(q)
				if !isRadio(n) || p.consumed[n] {
					continue
				}
				p.consume(n)
				label := labels[col]
				if label == "" {
					label = normalize(textOf(cell))
				}
				value := optionValue(n, label, len(row.Options))
				row.Options = append(row.Options, Option{Value: value, Label: label})
				d.Anchors = append(d.Anchors, Anchor{Pos: q, Number: number, Value: value})
			}
			col++
		}
		d.Rows = append(d.Rows, row)
	}

	p.emit(d)
}

// tableRows returns the rows belonging directly to t.
func (p *pass) tableRows(pos int, t *html.Node) []*html.Node {
	var rows []*html.Node
	for q := pos + 1; q < p.doc.end(t); q++ {
		n := p.doc.Node(q)
		if isElement(n, atom.Tr) && owningTable(n) == t {
			rows = append(rows, n)
		}
	}
	return rows
}

func owningTable(n *html.Node) *html.Node {
	for a := n.Parent; a != nil; a = a.Parent {
		if isElement(a, atom.Table) {
			return a
		}
	}
	return nil
}

// columnLabels reads option labels from the first row without radios.
func columnLabels(rows []*html.Node) map[int]string {
	labels := make(map[int]string)
	for _, tr := range rows {
		if containsInput(tr, isRadio) {
			continue
		}
		col := 0
		for cell := tr.FirstChild; cell != nil; cell = cell.NextSibling {
			if !isElement(cell, atom.Td, atom.Th) {
				continue
			}
			labels[col] = normalize(textOf(cell))
			col++
		}
		break
	}
	return labels
}

func firstMarkerIn(n *html.Node) *html.Node {
	if _, ok := markerNumber(n); ok {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := firstMarkerIn(c); m != nil {
			return m
		}
	}
	return nil
}

// rowText is the first cell's text without its marker.
func rowText(tr *html.Node) string {
	for cell := tr.FirstChild; cell != nil; cell = cell.NextSibling {
		if !isElement(cell, atom.Td, atom.Th) {
			continue
		}
		text := normalize(textOf(cell))
		if m := firstMarkerIn(cell); m != nil {
			text = strings.TrimSpace(strings.TrimPrefix(text, normalize(textOf(m))))
		}
		return text
	}
	return ""
}
