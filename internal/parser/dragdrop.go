package parser

import (
	"sort"

	"golang.org/x/net/html"
)

// dragDrop builds a drag-drop descriptor from a container, its drop zones
// and its option pool. Zones take their number from the resolution chain
// and otherwise fill the range sequentially.
func (p *pass) dragDrop(pos int, c *html.Node) {
	section := p.headers.sectionOf(pos)
	d := Descriptor{
		Kind:    KindDragDrop,
		Pos:     pos,
		PoolPos: -1,
		Content: Render(c),
	}
	if section >= 0 {
		d.Text = p.headers[section].Instruction
	}

	r := newNumberResolver(c, isDropZone)
	claimed := make(map[int]bool)
	low, high := 0, 0
	for q := pos + 1; q < p.doc.end(c); q++ {
		n := p.doc.Node(q)
		if !isDropZone(n) {
			continue
		}
		res := r.resolve(n, 0)
		if res.Number > 0 {
			claimed[res.Number] = true
			if low == 0 || res.Number < low {
				low = res.Number
			}
			if res.Number > high {
				high = res.Number
			}
		}
		d.Zones = append(d.Zones, Zone{Pos: q, Number: res.Number})
	}

	switch {
	case section >= 0:
		d.Start, d.End = p.headers[section].Start, p.headers[section].End
	case low > 0:
		d.Start, d.End = low, high
	default:
		d.Start = p.fallback
		if d.Start < 1 {
			d.Start = 1
		}
		d.End = d.Start + len(d.Zones) - 1
	}
	d.Number = d.Start

	next := d.Start
	for i := range d.Zones {
		if d.Zones[i].Number > 0 {
			continue
		}
		for claimed[next] {
			next++
		}
		d.Zones[i].Number = next
		claimed[next] = true
	}
	for _, z := range d.Zones {
		if z.Number > d.End {
			d.End = z.Number
		}
	}

	p.consumeTree(c)

	if pool := p.findPool(c, section); pool != nil {
		d.PoolPos = p.doc.Pos(pool)
		d.Options = poolOptions(pool)
		p.consumeTree(pool)
	}

	sort.SliceStable(d.Zones, func(i, j int) bool { return d.Zones[i].Pos < d.Zones[j].Pos })
	p.emit(d)
}

// findPool looks for the option pool inside the container first, then
// anywhere in the same section.
func (p *pass) findPool(c *html.Node, section int) *html.Node {
	for q := p.doc.Pos(c) + 1; q < p.doc.end(c); q++ {
		if n := p.doc.Node(q); hasClass(n, "drag-options") {
			return n
		}
	}
	from, to := p.headers.bounds(section, p.doc.Len())
	for q := from; q < to; q++ {
		n := p.doc.Node(q)
		if hasClass(n, "drag-options") && !p.consumed[n] {
			return n
		}
	}
	return nil
}

func poolOptions(pool *html.Node) []Option {
	var opts []Option
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if hasClass(n, "drag-option") {
			label := normalize(textOf(n))
			opts = append(opts, Option{Value: dragValue(n, label), Label: label})
			return
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(pool)
	return opts
}

func dragValue(n *html.Node, label string) string {
	if v, ok := attr(n, "data-value"); ok && v != "" {
		return v
	}
	if m := letterPattern.FindStringSubmatch(label); m != nil {
		return m[1]
	}
	return label
}
