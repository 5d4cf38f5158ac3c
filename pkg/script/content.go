package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// ErrNotFound is returned when the requested resource does not exist at the
// content root.
var ErrNotFound = errors.New("content not found")

// Heading is one markdown heading, in document order.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Content is a resolved markdown resource converted to HTML.
type Content struct {
	Source   string    `json:"source"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Headings []Heading `json:"headings"`
}

// resourcePath maps the request path onto the markdown document it names.
func resourcePath(p string) string {
	p = path.Clean("/" + strings.TrimSpace(p))
	if path.Ext(p) == "" && p != "/" {
		p += ".md"
	}
	return p
}

// contentLocation returns the full location of the resource for params under
// root, which is either an http(s) URL, a file:// URL or a directory.
func contentLocation(root string, params Params) (string, error) {
	owner, repo := params.String(ParamOwner), params.String(ParamRepo)
	if owner == "" || repo == "" {
		return "", fmt.Errorf("missing %s/%s parameters", ParamOwner, ParamRepo)
	}
	if params.String(ParamPath) == "" {
		return "", fmt.Errorf("missing %s parameter", ParamPath)
	}
	ref := params.String(ParamRef)
	if ref == "" {
		ref = params.String(ParamBranch)
	}
	if ref == "" {
		ref = "master"
	}
	for _, seg := range [][2]string{{ParamOwner, owner}, {ParamRepo, repo}, {ParamRef, ref}} {
		if !validSegment(seg[1]) {
			return "", fmt.Errorf("invalid %s %q", seg[0], seg[1])
		}
	}
	rel := path.Join(owner, repo, ref, resourcePath(params.String(ParamPath)))
	if isHTTP(root) {
		return strings.TrimSuffix(root, "/") + "/" + rel, nil
	}
	dir := strings.TrimPrefix(root, "file://")
	return filepath.Join(dir, filepath.FromSlash(rel)), nil
}

// validSegment reports whether s names exactly one directory below the root.
func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}

func isHTTP(root string) bool {
	return strings.HasPrefix(root, "http://") || strings.HasPrefix(root, "https://")
}

// fetch reads the raw resource at loc.
func fetch(ctx context.Context, loc string, timeout time.Duration, requestID string) ([]byte, error) {
	if !isHTTP(loc) {
		data, err := os.ReadFile(loc)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", loc, err)
		}
		return data, nil
	}

	client := resty.New().SetTimeout(timeout)
	defer client.GetClient().CloseIdleConnections()
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", requestID).
		SetHeader("Accept", "text/markdown, text/plain, */*").
		Get(loc)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", loc, err)
	}
	if resp.StatusCode() == 404 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", loc, resp.StatusCode())
	}
	return resp.Body(), nil
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// convert turns markdown source into Content.
func convert(source string, src []byte) (*Content, error) {
	doc := markdown.Parser().Parse(text.NewReader(src))

	c := &Content{Source: source, Headings: []Heading{}}
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		title := plainText(h, src)
		if c.Title == "" {
			c.Title = title
		}
		c.Headings = append(c.Headings, Heading{Level: h.Level, Text: title})
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}

	var buf bytes.Buffer
	if err := markdown.Renderer().Render(&buf, src, doc); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	c.Body = buf.String()
	return c, nil
}

func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
