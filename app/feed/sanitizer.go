package feed

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var strippedTags = map[atom.Atom]bool{
	atom.Canvas:   true,
	atom.Footer:   true,
	atom.Head:     true,
	atom.Header:   true,
	atom.Iframe:   true,
	atom.Nav:      true,
	atom.Noscript: true,
	atom.Script:   true,
	atom.Style:    true,
}

// Sanitizer removes non-content structural elements from an HTML document.
type Sanitizer struct{}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// Run returns the cleaned document and its <body> rendered separately.
func (s *Sanitizer) Run(r io.Reader) (document string, body string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	removeNodes(doc)

	document = renderNode(doc)
	if b := findBody(doc); b != nil {
		body = renderChildren(b)
	}

	return document, body, nil
}

func removeNodes(n *html.Node) {
	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.ElementNode && strippedTags[node.DataAtom] {
			toRemove = append(toRemove, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)

	for _, node := range toRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	html.Render(&sb, n)
	return sb.String()
}

func renderChildren(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&sb, c)
	}
	return strings.TrimSpace(sb.String())
}
