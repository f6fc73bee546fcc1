package parser

import "golang.org/x/net/html"

// Strategy names the step of the resolution chain that produced a display number.
type Strategy string

// Resolution chain, in priority order.
const (
	ByMarker    Strategy = "marker"
	BySibling   Strategy = "sibling"
	ByParent    Strategy = "parent"
	ByAttribute Strategy = "attribute"
	ByContainer Strategy = "container"
)

// Resolution is the outcome of resolving the display number of an input.
type Resolution struct {
	Number int
	By     Strategy
	// Marker is the bolded label that supplied the number, nil for
	// attribute and container resolutions.
	Marker *html.Node
}

// numberResolver walks backwards from an input to find the marker that owns it.
// blocks marks nodes that own their own marker: meeting one means any marker
// further back belongs to it, so the search gives up instead of stealing it.
type numberResolver struct {
	root   *html.Node
	blocks func(*html.Node) bool
}

func newNumberResolver(root *html.Node, blocks func(*html.Node) bool) numberResolver {
	if blocks == nil {
		blocks = func(*html.Node) bool { return false }
	}
	return numberResolver{root: root, blocks: blocks}
}

// resolve runs the chain: marker, sibling, parent, attribute, container.
func (r numberResolver) resolve(n *html.Node, fallback int) Resolution {
	if m := r.immediateMarker(n); m != nil {
		num, _ := markerNumber(m)
		return Resolution{Number: num, By: ByMarker, Marker: m}
	}

	m, blocked := r.siblingMarker(n)
	if m != nil {
		num, _ := markerNumber(m)
		return Resolution{Number: num, By: BySibling, Marker: m}
	}

	if !blocked {
		if m := r.ancestorMarker(n); m != nil {
			num, _ := markerNumber(m)
			return Resolution{Number: num, By: ByParent, Marker: m}
		}
	}

	if num, ok := attrNumber(n, "data-question", "data-number"); ok {
		return Resolution{Number: num, By: ByAttribute}
	}

	return Resolution{Number: fallback, By: ByContainer}
}

// immediateMarker looks at preceding siblings separated from n only by text or line breaks.
func (r numberResolver) immediateMarker(n *html.Node) *html.Node {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		switch {
		case s.Type == html.TextNode || s.Type == html.CommentNode:
			continue
		case isElement(s) && s.Data == "br":
			continue
		}
		if _, ok := markerNumber(s); ok {
			return s
		}
		return nil
	}
	return nil
}

// siblingMarker searches the subtrees of preceding siblings, nearest first.
func (r numberResolver) siblingMarker(n *html.Node) (*html.Node, bool) {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if m, blocked := r.lastMarkerIn(s); m != nil || blocked {
			return m, blocked
		}
	}
	return nil, false
}

// ancestorMarker repeats the sibling search from every ancestor up to the root.
func (r numberResolver) ancestorMarker(n *html.Node) *html.Node {
	for a := n.Parent; a != nil && a != r.root; a = a.Parent {
		m, blocked := r.siblingMarker(a)
		if m != nil {
			return m
		}
		if blocked {
			return nil
		}
	}
	return nil
}

// lastMarkerIn scans a subtree in reverse document order. It reports the
// last marker, or blocked when a blocking node comes after every marker.
func (r numberResolver) lastMarkerIn(n *html.Node) (*html.Node, bool) {
	if _, ok := markerNumber(n); ok {
		return n, false
	}
	if r.blocks(n) {
		return nil, true
	}
	for c := n.LastChild; c != nil; c = c.PrevSibling {
		if m, blocked := r.lastMarkerIn(c); m != nil || blocked {
			return m, blocked
		}
	}
	return nil, false
}
