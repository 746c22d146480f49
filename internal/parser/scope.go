package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-card-scraper/internal/selector"
	"golang.org/x/net/html"
)

// ScopedDocument is the subtree of a snapshot rooted at the product
// container. Lookups never see markup outside of it.
type ScopedDocument struct {
	root *goquery.Selection
}

// Scope parses html and keeps only the first element matching container. A
// missing container yields an empty scope, not an error. A zero container
// keeps the whole document.
func Scope(raw string, container selector.Selector) (*ScopedDocument, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if container.IsZero() {
		return &ScopedDocument{root: doc.Selection}, nil
	}

	match := doc.Find(container.CSS()).First()
	if match.Length() == 0 {
		return &ScopedDocument{root: &goquery.Selection{}}, nil
	}

	// Detach the container so navigation, recommendations and footers are
	// dropped along with the rest of the tree.
	node := match.Get(0)
	if node.Parent != nil {
		node.Parent.RemoveChild(node)
	}
	wrapper := &html.Node{Type: html.DocumentNode}
	wrapper.AppendChild(node)

	return &ScopedDocument{root: goquery.NewDocumentFromNode(wrapper).Selection}, nil
}

// Empty reports whether the container was absent from the snapshot.
func (s *ScopedDocument) Empty() bool {
	return s == nil || s.root.Length() == 0
}

// Find returns every element in scope matching sel.
func (s *ScopedDocument) Find(sel selector.Selector) *goquery.Selection {
	if s.Empty() || sel.IsZero() {
		return &goquery.Selection{}
	}
	return s.root.Find(sel.CSS())
}
