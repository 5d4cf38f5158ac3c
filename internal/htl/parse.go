package htl

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"
)

// NodeType identifies the kind of a template node.
type NodeType int

const (
	DocumentNode NodeType = iota
	TextNode
	ElementNode
	// RawNode is passed through untouched: comments, doctypes, stray end tags.
	RawNode
)

// Node is a template tree node. Unlike html.Parse the tree mirrors the
// source exactly: no implied elements are inserted and raw tag text is kept.
type Node struct {
	Type        NodeType
	Data        string
	Raw         string
	Attrs       []html.Attribute
	Children    []*Node
	SelfClosing bool
	// EndRaw is the source of the end tag, empty when it was implied.
	EndRaw string
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// Parse reads a template into a Node tree.
func Parse(r io.Reader) (*Node, error) {
	doc := &Node{Type: DocumentNode}
	stack := []*Node{doc}
	top := func() *Node { return stack[len(stack)-1] }

	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return doc, nil
			}
			return nil, fmt.Errorf("tokenize template: %w", z.Err())
		}
		// Raw first: Token lowercases names in the tokenizer's buffer.
		raw := string(z.Raw())

		switch tt {
		case html.TextToken:
			parent := top()
			if n := len(parent.Children); n > 0 && parent.Children[n-1].Type == TextNode {
				parent.Children[n-1].Raw += raw
				continue
			}
			parent.Children = append(parent.Children, &Node{Type: TextNode, Raw: raw})

		case html.CommentToken, html.DoctypeToken:
			top().Children = append(top().Children, &Node{Type: RawNode, Raw: raw})

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			n := &Node{
				Type:        ElementNode,
				Data:        tok.Data,
				Raw:         raw,
				Attrs:       tok.Attr,
				SelfClosing: tt == html.SelfClosingTagToken,
			}
			top().Children = append(top().Children, n)
			if tt == html.StartTagToken && !voidElements[n.Data] {
				stack = append(stack, n)
			}

		case html.EndTagToken:
			tok := z.Token()
			i := len(stack) - 1
			for ; i > 0; i-- {
				if stack[i].Data == tok.Data {
					break
				}
			}
			if i == 0 {
				top().Children = append(top().Children, &Node{Type: RawNode, Raw: raw})
				continue
			}
			stack[i].EndRaw = raw
			stack = stack[:i]
		}
	}
}
