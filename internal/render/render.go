// Package render rebuilds a part's question content as an interactive
// document: every parsed descriptor anchor is replaced by a live widget
// reflecting the current answers, and everything else is left untouched.
package render

import (
	"strconv"
	"strings"

	"github.com/stemsi/ielts-listening/internal/model"
	"github.com/stemsi/ielts-listening/internal/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Numbers resolves a display number to its question id.
type Numbers interface {
	ID(number int) (string, bool)
}

// Answers reads the current answer of a question id.
type Answers interface {
	Answer(questionID string) string
}

// Block is one question payload of the part and its parse result.
type Block struct {
	QuestionID string
	Raw        string
	Result     *parser.Result
}

// Input is everything needed to render one part.
type Input struct {
	Part       int
	Blocks     []Block
	Numbers    Numbers
	Answers    Answers
	Hard       map[int]bool
	Highlights []model.Highlight
}

// Render produces the interactive HTML of a part. Rendering is deterministic
// for the same input.
func Render(in Input) string {
	var b strings.Builder
	b.WriteString(`<div class="listening-part" data-part="`)
	b.WriteString(strconv.Itoa(in.Part))
	b.WriteString(`">`)

	r := &renderer{in: in, ids: make(map[int]bool)}
	for _, blk := range in.Blocks {
		b.WriteString(`<div class="question" data-question-id="`)
		b.WriteString(html.EscapeString(blk.QuestionID))
		b.WriteString(`">`)
		b.WriteString(r.block(blk))
		b.WriteString(`</div>`)
	}

	b.WriteString(`</div>`)
	return b.String()
}

type renderer struct {
	in Input
	// ids records display numbers whose jump anchor was already emitted.
	ids map[int]bool
}

// block renders one payload. A payload without descriptors is returned as is.
func (r *renderer) block(blk Block) string {
	if blk.Result == nil || len(blk.Result.Descriptors) == 0 {
		return blk.Raw
	}

	root, clones := cloneDocument(blk.Result.Doc)
	for _, d := range blk.Result.Descriptors {
		switch d.Kind {
		case parser.KindFillBlank:
			r.blank(clones, d)
		case parser.KindMultipleChoice, parser.KindTableRadio:
			r.radios(clones, d)
		case parser.KindCheckboxGroup:
			r.checkboxes(clones, d)
		case parser.KindDragDrop:
			r.dragDrop(clones, d)
		}
	}

	for _, h := range r.in.Highlights {
		wrapHighlight(root, h)
	}

	var b strings.Builder
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&b, c)
	}
	return b.String()
}

func (r *renderer) answer(number int) (string, bool) {
	id, ok := r.in.Numbers.ID(number)
	if !ok {
		return "", false
	}
	return r.in.Answers.Answer(id), true
}

// anchorAttrs returns the jump id for a number the first time it is seen.
func (r *renderer) anchorAttrs(number int) []html.Attribute {
	if r.ids[number] {
		return nil
	}
	r.ids[number] = true
	return []html.Attribute{{Key: "id", Val: QuestionAnchor(number)}}
}

// QuestionAnchor is the element id the progress bar jumps to.
func QuestionAnchor(number int) string {
	return "question-" + strconv.Itoa(number)
}

func (r *renderer) blank(clones []*html.Node, d parser.Descriptor) {
	for _, a := range d.Anchors {
		value, resolved := r.answer(a.Number)
		attrs := []html.Attribute{
			{Key: "type", Val: "text"},
			{Key: "class", Val: "blank"},
			{Key: "name", Val: fieldName(a.Number)},
			{Key: "data-number", Val: strconv.Itoa(a.Number)},
			{Key: "value", Val: value},
			{Key: "autocomplete", Val: "off"},
		}
		attrs = append(attrs, r.anchorAttrs(a.Number)...)
		if d.InTable {
			attrs = append(attrs, html.Attribute{Key: "data-table-number", Val: strconv.Itoa(d.TableNumber)})
		}
		attrs = append(attrs, r.unresolvedAttrs(resolved)...)
		r.replace(clones[a.Pos], a.Number, element(atom.Input, attrs))
	}
}

func (r *renderer) radios(clones []*html.Node, d parser.Descriptor) {
	for _, a := range d.Anchors {
		value, resolved := r.answer(a.Number)
		attrs := []html.Attribute{
			{Key: "type", Val: "radio"},
			{Key: "name", Val: fieldName(a.Number)},
			{Key: "value", Val: a.Value},
			{Key: "data-number", Val: strconv.Itoa(a.Number)},
		}
		attrs = append(attrs, r.anchorAttrs(a.Number)...)
		if resolved && value == a.Value {
			attrs = append(attrs, html.Attribute{Key: "checked"})
		}
		attrs = append(attrs, r.unresolvedAttrs(resolved)...)
		r.replace(clones[a.Pos], a.Number, element(atom.Input, attrs))
	}
}

func (r *renderer) checkboxes(clones []*html.Node, d parser.Descriptor) {
	selected := make(map[string]bool)
	anyResolved := false
	for n := d.Start; n <= d.End; n++ {
		if v, ok := r.answer(n); ok {
			anyResolved = true
			if v != "" {
				selected[v] = true
			}
		}
	}

	for i, a := range d.Anchors {
		if i == 0 {
			first := clones[a.Pos]
			for n := d.Start; n <= d.End; n++ {
				if attrs := r.anchorAttrs(n); attrs != nil {
					span := element(atom.Span, append(attrs, html.Attribute{Key: "class", Val: "question-anchor"}))
					first.Parent.InsertBefore(span, first)
					r.hardHint(first, n)
				}
			}
		}

		attrs := []html.Attribute{
			{Key: "type", Val: "checkbox"},
			{Key: "name", Val: "group-" + strconv.Itoa(d.Start)},
			{Key: "value", Val: a.Value},
			{Key: "data-start", Val: strconv.Itoa(d.Start)},
			{Key: "data-end", Val: strconv.Itoa(d.End)},
			{Key: "data-select-count", Val: strconv.Itoa(d.SelectCount)},
		}
		if selected[a.Value] {
			attrs = append(attrs, html.Attribute{Key: "checked"})
		}
		attrs = append(attrs, r.unresolvedAttrs(anyResolved)...)
		swap(clones[a.Pos], element(atom.Input, attrs))
	}
}

func (r *renderer) dragDrop(clones []*html.Node, d parser.Descriptor) {
	labels := make(map[string]string, len(d.Options))
	for _, o := range d.Options {
		labels[o.Value] = o.Label
	}

	placed := make(map[string]bool)
	for _, z := range d.Zones {
		value, resolved := r.answer(z.Number)
		zone := clones[z.Pos]
		setAttr(zone, "data-number", strconv.Itoa(z.Number))
		for _, a := range r.anchorAttrs(z.Number) {
			setAttr(zone, a.Key, a.Val)
		}
		for _, a := range r.unresolvedAttrs(resolved) {
			setAttr(zone, a.Key, a.Val)
		}
		clearChildren(zone)
		if value != "" {
			placed[value] = true
			setAttr(zone, "data-value", value)
			label := labels[value]
			if label == "" {
				label = value
			}
			option := element(atom.Span, []html.Attribute{
				{Key: "class", Val: "drag-option"},
				{Key: "draggable", Val: "true"},
				{Key: "data-value", Val: value},
			})
			option.AppendChild(&html.Node{Type: html.TextNode, Data: label})
			zone.AppendChild(option)
		}
		r.hardHint(zone, z.Number)
	}

	if d.PoolPos <= 0 {
		return
	}
	pool := clones[d.PoolPos]
	setAttr(pool, "data-start", strconv.Itoa(d.Start))
	clearChildren(pool)
	for _, o := range Pool(d, placed) {
		option := element(atom.Span, []html.Attribute{
			{Key: "class", Val: "drag-option"},
			{Key: "draggable", Val: "true"},
			{Key: "data-value", Val: o.Value},
		})
		option.AppendChild(&html.Node{Type: html.TextNode, Data: o.Label})
		pool.AppendChild(option)
	}
}

// replace swaps old for a widget and appends the hard hint when flagged.
func (r *renderer) replace(old *html.Node, number int, widget *html.Node) {
	swap(old, widget)
	r.hardHint(widget, number)
}

// hardHint inserts the "hard" indicator right after n when number is flagged.
func (r *renderer) hardHint(n *html.Node, number int) {
	if !r.in.Hard[number] || n.Parent == nil {
		return
	}
	hint := element(atom.Span, []html.Attribute{
		{Key: "class", Val: "hard-hint"},
		{Key: "data-number", Val: strconv.Itoa(number)},
		{Key: "title", Val: "Marked as hard"},
	})
	hint.AppendChild(&html.Node{Type: html.TextNode, Data: "!"})
	n.Parent.InsertBefore(hint, n.NextSibling)
}

func (r *renderer) unresolvedAttrs(resolved bool) []html.Attribute {
	if resolved {
		return nil
	}
	return []html.Attribute{{Key: "disabled"}, {Key: "data-unresolved", Val: "true"}}
}

func fieldName(number int) string {
	return "q-" + strconv.Itoa(number)
}
