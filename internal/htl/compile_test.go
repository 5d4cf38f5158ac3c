package htl

import (
	"go/parser"
	"go/token"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string, opts Options) string {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "html"
	}
	out, err := Compile([]byte(src), opts)
	require.NoError(t, err)

	// Generated code must always parse and import only the runtime.
	f, err := parser.ParseFile(token.NewFileSet(), "html.go", out, parser.ImportsOnly)
	require.NoError(t, err, string(out))
	require.Len(t, f.Imports, 1)
	path, _ := strconv.Unquote(f.Imports[0].Path.Value)
	assert.Equal(t, RuntimeImport, path)
	assert.Equal(t, "main", f.Name.Name)
	return string(out)
}

func TestCompile_Skeleton(t *testing.T) {
	out := compile(t, `<p>hi</p>`, Options{Name: "html", Source: "src/html.htl"})

	assert.True(t, strings.HasPrefix(out, "// Code generated by htlpack from src/html.htl. DO NOT EDIT.\n"))
	assert.Contains(t, out, "func Main(params script.Params, secrets script.Secrets, logger script.Logger) *script.Future {")
	assert.Contains(t, out, `logger.Debugf("%s: entry point invoked", "html")`)
	assert.Contains(t, out, `return script.Run("html", params, secrets, logger, render)`)
	assert.Contains(t, out, `w.Raw("<p>hi</p>")`)
}

func TestCompile_DefaultSourceName(t *testing.T) {
	out := compile(t, `x`, Options{Name: "page"})
	assert.True(t, strings.HasPrefix(out, "// Code generated by htlpack from page.htl. DO NOT EDIT."))
}

func TestCompile_Expressions(t *testing.T) {
	out := compile(t, `<title>${content.title}</title><a href="/x?${request.path}" title="${'a&b'}">${content.body @ context='html'}</a>${!content.title}`, Options{})

	assert.Contains(t, out, `c.Text(w, "content.title")`)
	assert.Contains(t, out, `c.Attr(w, "request.path")`)
	assert.Contains(t, out, `c.HTML(w, "content.body")`)
	assert.Contains(t, out, `title=\"a&amp;b\"`)
	assert.Contains(t, out, `if c.Test("content.title") {`)
}

func TestCompile_Blocks(t *testing.T) {
	src := `<nav data-sly-test="${content.headings}"><ul data-sly-list.h="${content.headings}"><li data-sly-text="${h.text}">x</li></ul></nav><span data-sly-unwrap>${a}</span>`
	out := compile(t, src, Options{})

	assert.Contains(t, out, `if c.Test("content.headings") {`)
	assert.Contains(t, out, `if err := c.Each("content.headings", "h", func(c *script.Context) error {`)
	assert.Contains(t, out, `c.Text(w, "h.text")`)
	assert.NotContains(t, out, "data-sly")
	assert.NotContains(t, out, "<span")
	assert.NotContains(t, out, ">x<")
	assert.Contains(t, out, `c.Text(w, "a")`)
}

func TestCompile_DefaultListName(t *testing.T) {
	out := compile(t, `<ul data-sly-list="${items}"><li>${item}</li></ul>`, Options{})
	assert.Contains(t, out, `c.Each("items", "item",`)
}

func TestCompile_NegatedTest(t *testing.T) {
	out := compile(t, `<p data-sly-test="${!content.title}">untitled</p>`, Options{})
	assert.Contains(t, out, `if !c.Test("content.title") {`)
}

func TestCompile_LiteralTests(t *testing.T) {
	out := compile(t, `<p data-sly-test="${'yes'}">shown</p><p data-sly-test="${''}">hidden</p><p data-sly-test="${!''}">also</p>`, Options{})
	assert.Contains(t, out, "shown")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "also")
	assert.NotContains(t, out, "c.Test")
}

func TestCompile_Minify(t *testing.T) {
	src := "<div>\n    <p>a   b</p>\n\n</div>"
	assert.Contains(t, compile(t, src, Options{}), `"<div>\n    <p>a   b</p>\n\n</div>"`)
	assert.Contains(t, compile(t, src, Options{Minify: true}), `"<div> <p>a b</p> </div>"`)
}

func TestCompile_Deterministic(t *testing.T) {
	src := `<html><body data-sly-test="${x}">${y}</body></html>`
	assert.Equal(t, compile(t, src, Options{}), compile(t, src, Options{}))
}

func TestCompile_Errors(t *testing.T) {
	tests := map[string]string{
		"unterminated":    `<p>${content.title</p>`,
		"empty":           `<p>${}</p>`,
		"unknown context": `<p>${x @ context='css'}</p>`,
		"bad option":      `<p>${x @ context}</p>`,
		"unknown block":   `<p data-sly-use="${x}"></p>`,
		"block literal":   `<p data-sly-test="x"></p>`,
		"list literal":    `<ul data-sly-list="${'a'}"></ul>`,
		"list name":       `<ul data-sly-list.a.b="${x}"></ul>`,
		"attr expression": `<a href="${x">`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Compile([]byte(src), Options{Name: "html"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSyntax)
			assert.True(t, strings.HasPrefix(err.Error(), "html: "), err.Error())
		})
	}
}

func TestCompile_RequiresName(t *testing.T) {
	_, err := Compile([]byte("x"), Options{})
	assert.Error(t, err)
}
