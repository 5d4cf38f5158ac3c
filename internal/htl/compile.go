package htl

import (
	"bytes"
	"fmt"
	"go/format"
	"html"
	"regexp"
	"strconv"
	"strings"
)

// RuntimeImport is the only package a compiled script imports.
const RuntimeImport = "htlpack/pkg/script"

// Block attributes.
const (
	attrTest   = "data-sly-test"
	attrList   = "data-sly-list"
	attrText   = "data-sly-text"
	attrUnwrap = "data-sly-unwrap"
)

// Options controls code generation.
type Options struct {
	// Name identifies the script in logs and errors, e.g. "html".
	Name string
	// Source is the template file name recorded in the generated header.
	Source string
	// Minify collapses whitespace runs in literal text.
	Minify bool
}

// Compile translates template source into gofmt'ed Go source.
func Compile(src []byte, opts Options) ([]byte, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("compile: script name required")
	}
	doc, err := Parse(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Name, err)
	}

	g := &generator{opts: opts, indent: 1}
	if err := g.children(doc); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Name, err)
	}
	g.flush()

	var out bytes.Buffer
	source := opts.Source
	if source == "" {
		source = opts.Name + ".htl"
	}
	fmt.Fprintf(&out, "// Code generated by htlpack from %s. DO NOT EDIT.\n\n", source)
	fmt.Fprintf(&out, "package main\n\nimport %q\n\n", RuntimeImport)
	fmt.Fprintf(&out, "// Main renders the %s template for one request.\n", opts.Name)
	out.WriteString("func Main(params script.Params, secrets script.Secrets, logger script.Logger) *script.Future {\n")
	fmt.Fprintf(&out, "\tlogger.Debugf(\"%%s: entry point invoked\", %q)\n", opts.Name)
	fmt.Fprintf(&out, "\treturn script.Run(%q, params, secrets, logger, render)\n}\n\n", opts.Name)
	out.WriteString("func render(c *script.Context, w *script.Writer) error {\n")
	out.Write(g.body.Bytes())
	out.WriteString("\treturn nil\n}\n")

	formatted, err := format.Source(out.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s: format generated source: %w", opts.Name, err)
	}
	return formatted, nil
}

var whitespace = regexp.MustCompile(`\s+`)

type generator struct {
	opts    Options
	body    bytes.Buffer
	pending strings.Builder
	indent  int
}

func (g *generator) line(format string, args ...any) {
	g.body.WriteString(strings.Repeat("\t", g.indent))
	fmt.Fprintf(&g.body, format, args...)
	g.body.WriteByte('\n')
}

// literal queues text for a single w.Raw call.
func (g *generator) literal(s string) {
	g.pending.WriteString(s)
}

func (g *generator) flush() {
	if g.pending.Len() == 0 {
		return
	}
	g.line("w.Raw(%s)", strconv.Quote(g.pending.String()))
	g.pending.Reset()
}

func (g *generator) children(n *Node) error {
	for _, child := range n.Children {
		if err := g.node(child); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) node(n *Node) error {
	switch n.Type {
	case TextNode:
		return g.text(n.Raw, ContextText)
	case RawNode:
		g.literal(n.Raw)
		return nil
	case ElementNode:
		return g.element(n)
	}
	return g.children(n)
}

func (g *generator) text(raw string, def DisplayContext) error {
	segs, err := SplitText(raw)
	if err != nil {
		return err
	}
	for _, s := range segs {
		if s.Expr == nil {
			text := s.Text
			if g.opts.Minify {
				text = whitespace.ReplaceAllString(text, " ")
			}
			g.literal(text)
			continue
		}
		g.expr(s.Expr, def)
	}
	return nil
}

func (g *generator) expr(e *Expr, def DisplayContext) {
	ctx := e.Context
	if ctx == "" {
		ctx = def
	}

	if e.IsLiteral {
		v := e.Literal
		if e.Negate {
			v = strconv.FormatBool(v == "")
		}
		if ctx.escapes() {
			v = html.EscapeString(v)
		}
		g.literal(v)
		return
	}

	g.flush()
	if e.Negate {
		g.line("if c.Test(%q) {", e.Path)
		g.line("\tw.Raw(\"false\")")
		g.line("} else {")
		g.line("\tw.Raw(\"true\")")
		g.line("}")
		return
	}
	switch ctx {
	case ContextHTML, ContextUnsafe:
		g.line("c.HTML(w, %q)", e.Path)
	case ContextAttribute:
		g.line("c.Attr(w, %q)", e.Path)
	default:
		g.line("c.Text(w, %q)", e.Path)
	}
}

// blockExpr parses a block attribute value, which must be one expression.
func blockExpr(attr, val string) (*Expr, error) {
	segs, err := SplitText(strings.TrimSpace(val))
	if err != nil {
		return nil, err
	}
	if len(segs) != 1 || segs[0].Expr == nil {
		return nil, fmt.Errorf("%w: %s needs a single ${...} expression, got %q", ErrSyntax, attr, val)
	}
	return segs[0].Expr, nil
}

type blocks struct {
	test     *Expr
	list     *Expr
	listName string
	text     *Expr
	unwrap   bool
	attrs    []attr
}

type attr struct {
	key, val string
}

func parseBlocks(n *Node) (*blocks, error) {
	b := &blocks{}
	var err error
	for _, a := range n.Attrs {
		switch {
		case a.Key == attrTest:
			b.test, err = blockExpr(a.Key, a.Val)
		case a.Key == attrList || strings.HasPrefix(a.Key, attrList+"."):
			b.list, err = blockExpr(a.Key, a.Val)
			b.listName = "item"
			if name := strings.TrimPrefix(a.Key, attrList+"."); name != a.Key {
				if !pathPattern.MatchString(name) || strings.Contains(name, ".") {
					return nil, fmt.Errorf("%w: invalid list variable %q", ErrSyntax, name)
				}
				b.listName = name
			}
		case a.Key == attrText:
			b.text, err = blockExpr(a.Key, a.Val)
		case a.Key == attrUnwrap:
			b.unwrap = true
		case strings.HasPrefix(a.Key, "data-sly-"):
			return nil, fmt.Errorf("%w: unsupported block %s", ErrSyntax, a.Key)
		default:
			b.attrs = append(b.attrs, attr{key: a.Key, val: a.Val})
		}
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *blocks) plain() bool {
	return b.test == nil && b.list == nil && b.text == nil && !b.unwrap
}

func (g *generator) element(n *Node) error {
	b, err := parseBlocks(n)
	if err != nil {
		return err
	}

	closeTest := false
	if b.test != nil {
		switch {
		case b.test.IsLiteral:
			if (b.test.Literal != "") == b.test.Negate {
				return nil
			}
		default:
			g.flush()
			if b.test.Negate {
				g.line("if !c.Test(%q) {", b.test.Path)
			} else {
				g.line("if c.Test(%q) {", b.test.Path)
			}
			g.indent++
			closeTest = true
		}
	}

	if !b.unwrap {
		if err := g.startTag(n, b); err != nil {
			return err
		}
	}

	if err := g.content(n, b); err != nil {
		return err
	}

	if !b.unwrap {
		g.literal(n.EndRaw)
	}

	if closeTest {
		g.flush()
		g.indent--
		g.line("}")
	}
	return nil
}

func (g *generator) startTag(n *Node, b *blocks) error {
	if b.plain() && !HasExpr(n.Raw) {
		g.literal(n.Raw)
		return nil
	}
	g.literal("<" + n.Data)
	for _, a := range b.attrs {
		g.literal(" " + a.key)
		if a.val == "" {
			continue
		}
		g.literal(`="`)
		segs, err := SplitText(a.val)
		if err != nil {
			return err
		}
		for _, s := range segs {
			if s.Expr == nil {
				g.literal(html.EscapeString(s.Text))
				continue
			}
			g.expr(s.Expr, ContextAttribute)
		}
		g.literal(`"`)
	}
	if n.SelfClosing {
		g.literal("/>")
	} else {
		g.literal(">")
	}
	return nil
}

func (g *generator) content(n *Node, b *blocks) error {
	if b.text != nil {
		g.expr(b.text, ContextText)
		return nil
	}
	if b.list == nil {
		return g.children(n)
	}
	if b.list.IsLiteral {
		return fmt.Errorf("%w: %s cannot iterate a literal", ErrSyntax, attrList)
	}

	g.flush()
	g.line("if err := c.Each(%q, %q, func(c *script.Context) error {", b.list.Path, b.listName)
	g.indent++
	if err := g.children(n); err != nil {
		return err
	}
	g.flush()
	g.line("return nil")
	g.indent--
	g.line("}); err != nil {")
	g.line("\treturn err")
	g.line("}")
	return nil
}
