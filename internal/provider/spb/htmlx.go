// Package spb implements provider variants for St. Petersburg utility
// sources: planned electricity works, hot-water graph pages and cold-water
// repair announcements.
package spb

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// parseDoc parses an HTML document body. x/net/html is tolerant of the
// malformed markup these municipal sites routinely serve.
func parseDoc(body []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(body))
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// findAll returns every element node with the given tag, in document order.
func findAll(root *html.Node, tag string) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
	})
	return out
}

// findAllWithClass returns elements with the given tag carrying class.
func findAllWithClass(root *html.Node, tag, class string) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag && hasClass(n, class) {
			out = append(out, n)
		}
	})
	return out
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrVal(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// childElems returns direct element children with the given tag.
func childElems(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			out = append(out, c)
		}
	}
	return out
}

// nodeText returns the concatenated text content of n with whitespace
// collapsed, mirroring what a human sees in the rendered cell.
func nodeText(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return cleanString(b.String())
}

// textAfter returns the text immediately following the element (the lxml
// "tail"): cold-water announcements hold values as plain text after a
// <strong>label</strong> marker.
func textAfter(n *html.Node) string {
	var b strings.Builder
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			break
		}
		if s.Type == html.TextNode {
			b.WriteString(s.Data)
		}
	}
	return cleanString(b.String())
}

// cleanString drops newlines and non-breaking spaces and collapses runs of
// whitespace, the way the source pages pad their cells.
func cleanString(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}
