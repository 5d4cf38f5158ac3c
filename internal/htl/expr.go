// Package htl compiles a small subset of the HTML Template Language into Go
// scripts that run against htlpack/pkg/script.
//
// Supported: ${...} expressions in text and attribute values (dotted paths,
// quoted literals, ! negation, @ context option) and the data-sly-test,
// data-sly-list, data-sly-text and data-sly-unwrap block attributes.
package htl

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrSyntax is wrapped by every template syntax error.
var ErrSyntax = errors.New("htl syntax error")

// DisplayContext selects how an expression value is escaped on output.
type DisplayContext string

const (
	ContextText      DisplayContext = "text"
	ContextAttribute DisplayContext = "attribute"
	ContextHTML      DisplayContext = "html"
	ContextUnsafe    DisplayContext = "unsafe"
)

func (d DisplayContext) escapes() bool {
	return d != ContextHTML && d != ContextUnsafe
}

var pathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*(\.[A-Za-z0-9_-]+)*$`)

// Expr is one parsed ${...} expression.
type Expr struct {
	Source    string
	Path      string
	Literal   string
	IsLiteral bool
	Negate    bool
	// Context is empty unless set by an @ context option.
	Context DisplayContext
}

// ParseExpr parses the inside of a ${...} expression.
func ParseExpr(src string) (*Expr, error) {
	e := &Expr{Source: src}
	operand, opts, hasOpts := cutUnquoted(src, '@')
	operand = strings.TrimSpace(operand)
	if operand == "" {
		return nil, fmt.Errorf("%w: empty expression ${%s}", ErrSyntax, src)
	}

	if strings.HasPrefix(operand, "!") {
		e.Negate = true
		operand = strings.TrimSpace(operand[1:])
	}

	switch {
	case isQuoted(operand):
		e.IsLiteral = true
		e.Literal = operand[1 : len(operand)-1]
	case pathPattern.MatchString(operand):
		e.Path = operand
	default:
		return nil, fmt.Errorf("%w: invalid expression ${%s}", ErrSyntax, src)
	}

	if hasOpts {
		if err := e.parseOptions(opts); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Expr) parseOptions(opts string) error {
	for _, opt := range splitUnquoted(opts, ',') {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		key, val, ok := strings.Cut(opt, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || val == "" {
			return fmt.Errorf("%w: option %q needs a value in ${%s}", ErrSyntax, key, e.Source)
		}
		if isQuoted(val) {
			val = val[1 : len(val)-1]
		}
		switch key {
		case "context":
			switch d := DisplayContext(val); d {
			case ContextText, ContextAttribute, ContextHTML, ContextUnsafe:
				e.Context = d
			default:
				return fmt.Errorf("%w: unknown context %q in ${%s}", ErrSyntax, val, e.Source)
			}
		default:
			return fmt.Errorf("%w: unsupported option %q in ${%s}", ErrSyntax, key, e.Source)
		}
	}
	return nil
}

// Segment is either literal text or an expression.
type Segment struct {
	Text string
	Expr *Expr
}

// SplitText breaks s into literal and ${...} segments.
func SplitText(s string) ([]Segment, error) {
	var out []Segment
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			if s != "" {
				out = append(out, Segment{Text: s})
			}
			return out, nil
		}
		if i > 0 {
			out = append(out, Segment{Text: s[:i]})
		}
		end := closingBrace(s[i+2:])
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated expression %q", ErrSyntax, truncate(s[i:], 40))
		}
		e, err := ParseExpr(s[i+2 : i+2+end])
		if err != nil {
			return nil, err
		}
		out = append(out, Segment{Expr: e})
		s = s[i+2+end+1:]
	}
}

// HasExpr reports whether s contains an expression opener.
func HasExpr(s string) bool {
	return strings.Contains(s, "${")
}

func closingBrace(s string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '}':
			return i
		}
	}
	return -1
}

func cutUnquoted(s string, sep byte) (before, after string, found bool) {
	var quote byte
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == sep:
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func splitUnquoted(s string, sep byte) []string {
	var parts []string
	for {
		before, after, found := cutUnquoted(s, sep)
		parts = append(parts, before)
		if !found {
			return parts
		}
		s = after
	}
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	q := s[0]
	return (q == '\'' || q == '"') && s[len(s)-1] == q
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
