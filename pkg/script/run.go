package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultHTTPTimeout = 10 * time.Second

// ErrBadRequest rejects calls whose params cannot address a resource.
var ErrBadRequest = errors.New("bad request")

// Run executes the render pipeline for one request and returns immediately.
// All logging goes through logger; Run keeps no state between calls.
func Run(name string, params Params, secrets Secrets, logger Logger, render func(*Context, *Writer) error) *Future {
	if logger == nil {
		return Reject(fmt.Errorf("%s: nil logger", name))
	}
	return Go(func() (*Response, error) {
		return run(name, params, secrets, logger, render)
	})
}

func run(name string, params Params, secrets Secrets, logger Logger, render func(*Context, *Writer) error) (*Response, error) {
	start := time.Now()
	headers := params.Headers()
	requestID := headers["X-Request-Id"]
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger.Debugf("%s: [%s] %s %s (selector=%q, secrets=%v)", name, requestID,
		params.String(ParamMethod), params.String(ParamPath), params.String(ParamSelector), secrets.Keys())

	timeout := defaultHTTPTimeout
	if raw := secrets.Get(SecretHTTPTimeout, ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			logger.Warnf("%s: [%s] ignoring invalid %s %q: %v", name, requestID, SecretHTTPTimeout, raw, err)
		} else {
			timeout = d
		}
	}

	root := secrets.Get(SecretContentRoot, DefaultContentRoot)
	loc, err := contentLocation(root, params)
	if err != nil {
		logger.Errorf("%s: [%s] %v", name, requestID, err)
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Debugf("%s: [%s] fetching content from %s", name, requestID, loc)
	src, err := fetch(ctx, loc, timeout, requestID)
	if errors.Is(err, ErrNotFound) {
		logger.Infof("%s: [%s] %v", name, requestID, err)
		return &Response{
			StatusCode: 404,
			Headers:    responseHeaders(requestID),
			Body:       "<!DOCTYPE html><html><body><h1>Not Found</h1></body></html>",
		}, nil
	}
	if err != nil {
		logger.Errorf("%s: [%s] %v", name, requestID, err)
		return nil, err
	}

	content, err := convert(loc, src)
	if err != nil {
		logger.Errorf("%s: [%s] %v", name, requestID, err)
		return nil, err
	}
	logger.Debugf("%s: [%s] converted %d bytes of markdown, title=%q", name, requestID, len(src), content.Title)

	c, err := NewContext(renderRoot(params, headers, content))
	if err != nil {
		return nil, err
	}
	w := &Writer{}
	if err := render(c, w); err != nil {
		logger.Errorf("%s: [%s] render failed: %v", name, requestID, err)
		return nil, fmt.Errorf("%s: render: %w", name, err)
	}

	logger.Infof("%s: [%s] rendered %d bytes in %s", name, requestID, len(w.String()), time.Since(start))
	return &Response{
		StatusCode: 200,
		Headers:    responseHeaders(requestID),
		Body:       w.String(),
	}, nil
}

func responseHeaders(requestID string) map[string]string {
	return map[string]string{
		"Content-Type": "text/html; charset=utf-8",
		"X-Request-Id": requestID,
	}
}

func renderRoot(params Params, headers map[string]string, content *Content) map[string]any {
	return map[string]any{
		"request": map[string]any{
			"path":     params.String(ParamPath),
			"method":   params.String(ParamMethod),
			"selector": params.String(ParamSelector),
			"params":   map[string]any(params),
			"headers":  headers,
		},
		"content": map[string]any{
			"source":   content.Source,
			"title":    content.Title,
			"body":     content.Body,
			"headings": content.Headings,
			"document": map[string]any{"body": content.Body},
		},
	}
}
