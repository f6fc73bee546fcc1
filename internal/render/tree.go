package render

import (
	"strings"

	"github.com/stemsi/ielts-listening/internal/model"
	"github.com/stemsi/ielts-listening/internal/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// cloneDocument deep-copies the parse tree so widgets can be substituted
// without touching the parser's document. clones[p] is the copy of the node
// at position p.
func cloneDocument(d *parser.Document) (*html.Node, []*html.Node) {
	clones := make([]*html.Node, d.Len())
	var clone func(n *html.Node) *html.Node
	clone = func(n *html.Node) *html.Node {
		c := &html.Node{
			Type:      n.Type,
			DataAtom:  n.DataAtom,
			Data:      n.Data,
			Namespace: n.Namespace,
			Attr:      append([]html.Attribute(nil), n.Attr...),
		}
		if p := d.Pos(n); p >= 0 {
			clones[p] = c
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			c.AppendChild(clone(ch))
		}
		return c
	}
	return clone(d.Root), clones
}

func element(a atom.Atom, attrs []html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

// swap puts repl where old was.
func swap(old, repl *html.Node) {
	if old.Parent == nil {
		return
	}
	old.Parent.InsertBefore(repl, old)
	old.Parent.RemoveChild(old)
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func clearChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
}

// wrapHighlight wraps the first occurrence of h.Text that sits inside a
// single text node in a mark element. Text already highlighted or inside
// form widgets is skipped.
func wrapHighlight(root *html.Node, h model.Highlight) bool {
	if strings.TrimSpace(h.Text) == "" {
		return false
	}

	var target *html.Node
	var at int
	var find func(n *html.Node) bool
	find = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Mark, atom.Script, atom.Style, atom.Textarea, atom.Select:
				return false
			}
		}
		if n.Type == html.TextNode {
			if i := strings.Index(n.Data, h.Text); i >= 0 {
				target, at = n, i
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if find(c) {
				return true
			}
		}
		return false
	}
	if !find(root) {
		return false
	}

	before := target.Data[:at]
	after := target.Data[at+len(h.Text):]
	parent := target.Parent

	mark := element(atom.Mark, []html.Attribute{
		{Key: "class", Val: "highlight"},
		{Key: "data-highlight-id", Val: h.ID},
	})
	mark.AppendChild(&html.Node{Type: html.TextNode, Data: h.Text})

	if before != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: before}, target)
	}
	parent.InsertBefore(mark, target)
	if after != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: after}, target)
	}
	parent.RemoveChild(target)
	return true
}
