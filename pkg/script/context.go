package script

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/tidwall/gjson"
)

// Context resolves template expressions. Paths are gjson paths evaluated
// against the render root, after local bindings introduced by list blocks.
type Context struct {
	root     gjson.Result
	bindings map[string]gjson.Result
	parent   *Context
}

// NewContext builds a render context from data. data must be JSON encodable.
func NewContext(data map[string]any) (*Context, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode render context: %w", err)
	}
	return &Context{root: gjson.ParseBytes(raw)}, nil
}

func (c *Context) binding(name string) (gjson.Result, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		if v, ok := cur.bindings[name]; ok {
			return v, true
		}
	}
	return gjson.Result{}, false
}

// Lookup returns the raw value at path.
func (c *Context) Lookup(path string) gjson.Result {
	path = strings.TrimSpace(path)
	if path == "" {
		return gjson.Result{}
	}
	head, rest, _ := strings.Cut(path, ".")
	if v, ok := c.binding(head); ok {
		if rest == "" {
			return v
		}
		return v.Get(rest)
	}
	return c.root.Get(path)
}

// Value returns the string form of the value at path.
func (c *Context) Value(path string) string {
	return stringify(c.Lookup(path))
}

// Test reports whether the value at path is truthy.
func (c *Context) Test(path string) bool {
	return truthy(c.Lookup(path))
}

// Text writes the value at path, HTML-escaped for a text node.
func (c *Context) Text(w *Writer, path string) {
	w.Raw(html.EscapeString(c.Value(path)))
}

// Attr writes the value at path, escaped for a quoted attribute value.
func (c *Context) Attr(w *Writer, path string) {
	w.Raw(html.EscapeString(c.Value(path)))
}

// HTML writes the value at path unescaped.
func (c *Context) HTML(w *Writer, path string) {
	w.Raw(c.Value(path))
}

// Each calls fn once per element of the array at path, with name bound to
// the element and name+"List" bound to {index, count, first, last, odd, even}.
// Objects iterate over their keys. Anything else iterates zero times.
func (c *Context) Each(path, name string, fn func(*Context) error) error {
	v := c.Lookup(path)
	var items []gjson.Result
	switch {
	case v.IsArray():
		items = v.Array()
	case v.IsObject():
		v.ForEach(func(key, _ gjson.Result) bool {
			items = append(items, key)
			return true
		})
	}
	for i, item := range items {
		status := gjson.Parse(fmt.Sprintf(
			`{"index":%d,"count":%d,"first":%t,"last":%t,"odd":%t,"even":%t}`,
			i, i+1, i == 0, i == len(items)-1, i%2 == 1, i%2 == 0))
		child := &Context{
			root:     c.root,
			parent:   c,
			bindings: map[string]gjson.Result{name: item, name + "List": status},
		}
		if err := fn(child); err != nil {
			return err
		}
	}
	return nil
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	case gjson.JSON:
		if v.IsArray() {
			return len(v.Array()) > 0
		}
		return true
	}
	return false
}

func stringify(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return v.Str
	case gjson.JSON:
		if v.IsArray() {
			parts := make([]string, 0)
			for _, el := range v.Array() {
				parts = append(parts, stringify(el))
			}
			return strings.Join(parts, ",")
		}
		return ""
	default:
		return v.String()
	}
}

// Writer accumulates rendered output.
type Writer struct {
	b strings.Builder
}

// Raw appends s verbatim.
func (w *Writer) Raw(s string) {
	w.b.WriteString(s)
}

// String returns everything written so far.
func (w *Writer) String() string {
	return w.b.String()
}
