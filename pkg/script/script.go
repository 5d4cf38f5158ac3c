// Package script is the runtime that compiled htlpack templates run against.
//
// A compiled template is a Go source file in package main exposing
//
//	func Main(params script.Params, secrets script.Secrets, logger script.Logger) *script.Future
//
// The host loads it under an interpreter (see internal/loader) and calls
// Main once per request. Everything the script needs at run time (content
// resolution, markdown conversion, expression lookup, escaping) lives here so
// the generated code stays small.
package script

import (
	"fmt"
	"sort"
	"strings"
)

// Params is the inbound request as delivered by the action host.
type Params map[string]any

// Well-known parameter keys.
const (
	ParamPath     = "path"
	ParamMethod   = "__ow_method"
	ParamHeaders  = "__ow_headers"
	ParamOwner    = "owner"
	ParamRepo     = "repo"
	ParamRef      = "ref"
	ParamBranch   = "branch"
	ParamSelector = "selector"
)

// String returns the string value of key, or "" when absent or not a string.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

// Headers returns the nested header mapping. Keys keep their original case.
func (p Params) Headers() map[string]string {
	out := map[string]string{}
	switch h := p[ParamHeaders].(type) {
	case map[string]string:
		for k, v := range h {
			out[k] = v
		}
	case map[string]any:
		for k, v := range h {
			out[k] = fmt.Sprint(v)
		}
	case Params:
		// yaml.v3 decodes nested mappings of a Params document as Params.
		for k, v := range h {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

// Secrets is the environment-like configuration bag passed with each call.
type Secrets map[string]string

// Recognised secret keys.
const (
	SecretContentRoot = "REPO_RAW_ROOT"
	SecretHTTPTimeout = "HTTP_TIMEOUT"
)

// DefaultContentRoot is used when the secrets bag carries no REPO_RAW_ROOT.
const DefaultContentRoot = "https://raw.githubusercontent.com/"

// Get returns the secret for key, or def when unset or empty.
func (s Secrets) Get(key, def string) string {
	if v := strings.TrimSpace(s[key]); v != "" {
		return v
	}
	return def
}

// Keys returns the secret names in sorted order. Values are never logged.
func (s Secrets) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Logger is the sink a script logs through for the duration of one call.
// *zap.SugaredLogger satisfies it.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// Response is the result of one invocation.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// EntryPoint is the signature every compiled script exposes as Main.
type EntryPoint func(params Params, secrets Secrets, logger Logger) *Future
