package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MaxNumber is the highest display number a marker may carry.
const MaxNumber = 40

// Document is an immutable parse tree of one question payload.
// Every node has a position: its pre-order index under Root, which is 0.
type Document struct {
	Root  *html.Node
	nodes []*html.Node
	pos   map[*html.Node]int
}

// ParseDocument parses a rich-text payload as a body fragment.
func ParseDocument(raw string) (*Document, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(raw), body)
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}

	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	d := &Document{Root: root, pos: make(map[*html.Node]int)}
	d.index(root)
	return d, nil
}

func (d *Document) index(n *html.Node) {
	d.pos[n] = len(d.nodes)
	d.nodes = append(d.nodes, n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.index(c)
	}
}

// Pos returns the position of n, or -1 when n is not part of the document.
func (d *Document) Pos(n *html.Node) int {
	if p, ok := d.pos[n]; ok {
		return p
	}
	return -1
}

// Node returns the node at position p.
func (d *Document) Node(p int) *html.Node {
	if p < 0 || p >= len(d.nodes) {
		return nil
	}
	return d.nodes[p]
}

// Len returns the number of nodes including the root.
func (d *Document) Len() int {
	return len(d.nodes)
}

// end returns the first position after the subtree rooted at n.
func (d *Document) end(n *html.Node) int {
	last := n
	for last.LastChild != nil {
		last = last.LastChild
	}
	return d.Pos(last) + 1
}

var (
	markerPattern = regexp.MustCompile(`^\s*(\d{1,2})\.?\s*$`)
	letterPattern = regexp.MustCompile(`^\s*([A-Z])(?:[.)]|\s|$)`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

func isElement(n *html.Node, atoms ...atom.Atom) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if len(atoms) == 0 {
		return true
	}
	for _, a := range atoms {
		if n.DataAtom == a {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	if !isElement(n) {
		return false
	}
	v, _ := attr(n, "class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func inputType(n *html.Node) string {
	if !isElement(n, atom.Input) {
		return ""
	}
	t, _ := attr(n, "type")
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return "text"
	}
	return t
}

func isTextInput(n *html.Node) bool { return inputType(n) == "text" }
func isRadio(n *html.Node) bool     { return inputType(n) == "radio" }

// isActiveCheckbox reports a checkbox that can take part in a group.
func isActiveCheckbox(n *html.Node) bool {
	if inputType(n) != "checkbox" {
		return false
	}
	_, disabled := attr(n, "disabled")
	return !disabled
}

func isAnyInput(n *html.Node) bool { return inputType(n) != "" }

func isDragDrop(n *html.Node) bool {
	if !isElement(n) {
		return false
	}
	if _, ok := attr(n, "data-dragdrop"); ok {
		return true
	}
	return hasClass(n, "drag-drop")
}

func isDropZone(n *html.Node) bool { return hasClass(n, "drop-zone") }

// markerNumber returns the display number carried by a bolded numeric label.
func markerNumber(n *html.Node) (int, bool) {
	if !isElement(n, atom.Strong, atom.B) {
		return 0, false
	}
	m := markerPattern.FindStringSubmatch(textOf(n))
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil || v < 1 || v > MaxNumber {
		return 0, false
	}
	return v, true
}

// attrNumber reads an explicit display number from one of the given attributes.
func attrNumber(n *html.Node, keys ...string) (int, bool) {
	for _, k := range keys {
		v, ok := attr(n, k)
		if !ok {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil && num >= 1 && num <= MaxNumber {
			return num, true
		}
	}
	return 0, false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func normalize(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// containsInput reports whether n is or holds an input accepted by match.
func containsInput(n *html.Node, match func(*html.Node) bool) bool {
	if match(n) {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if containsInput(c, match) {
			return true
		}
	}
	return false
}

// optionValue derives the answer value of a radio or checkbox option.
func optionValue(input *html.Node, label string, index int) string {
	if v, ok := attr(input, "value"); ok && strings.TrimSpace(v) != "" && !strings.EqualFold(v, "on") {
		return strings.TrimSpace(v)
	}
	if m := letterPattern.FindStringSubmatch(label); m != nil {
		return m[1]
	}
	return string(rune('A' + index%26))
}

// optionLabel returns the visible text of the element carrying an option input.
func optionLabel(input *html.Node) string {
	if input.Parent == nil {
		return ""
	}
	return normalize(textOf(input.Parent))
}

// Render serialises a subtree back to HTML.
func Render(n *html.Node) string {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}

// Markers returns the display numbers of every numeric marker, in source order.
func (d *Document) Markers() []int {
	var out []int
	for _, n := range d.nodes {
		if v, ok := markerNumber(n); ok {
			out = append(out, v)
		}
	}
	return out
}
