package loader

import (
	"go/constant"
	"go/token"
	"reflect"
	"strconv"

	"htlpack/pkg/script"

	"github.com/traefik/yaegi/interp"
)

// Symbols exposes htlpack/pkg/script to interpreted scripts. The layout
// follows `yaegi extract` output; keep it in step with the package's
// exported API.
var Symbols = interp.Exports{}

func strConst(s string) reflect.Value {
	return reflect.ValueOf(constant.MakeFromLiteral(strconv.Quote(s), token.STRING, 0))
}

func init() {
	Symbols["htlpack/pkg/script/script"] = map[string]reflect.Value{
		// function, constant and variable definitions
		"DefaultContentRoot": strConst(script.DefaultContentRoot),
		"ErrBadRequest":      reflect.ValueOf(&script.ErrBadRequest).Elem(),
		"ErrNotFound":        reflect.ValueOf(&script.ErrNotFound).Elem(),
		"ErrPanic":           reflect.ValueOf(&script.ErrPanic).Elem(),
		"Go":                 reflect.ValueOf(script.Go),
		"NewContext":         reflect.ValueOf(script.NewContext),
		"ParamBranch":        strConst(script.ParamBranch),
		"ParamHeaders":       strConst(script.ParamHeaders),
		"ParamMethod":        strConst(script.ParamMethod),
		"ParamOwner":         strConst(script.ParamOwner),
		"ParamPath":          strConst(script.ParamPath),
		"ParamRef":           strConst(script.ParamRef),
		"ParamRepo":          strConst(script.ParamRepo),
		"ParamSelector":      strConst(script.ParamSelector),
		"Reject":             reflect.ValueOf(script.Reject),
		"Resolve":            reflect.ValueOf(script.Resolve),
		"Run":                reflect.ValueOf(script.Run),
		"SecretContentRoot":  strConst(script.SecretContentRoot),
		"SecretHTTPTimeout":  strConst(script.SecretHTTPTimeout),

		// type definitions
		"Content":    reflect.ValueOf((*script.Content)(nil)),
		"Context":    reflect.ValueOf((*script.Context)(nil)),
		"EntryPoint": reflect.ValueOf((*script.EntryPoint)(nil)),
		"Future":     reflect.ValueOf((*script.Future)(nil)),
		"Heading":    reflect.ValueOf((*script.Heading)(nil)),
		"Logger":     reflect.ValueOf((*script.Logger)(nil)),
		"Params":     reflect.ValueOf((*script.Params)(nil)),
		"Response":   reflect.ValueOf((*script.Response)(nil)),
		"Secrets":    reflect.ValueOf((*script.Secrets)(nil)),
		"Writer":     reflect.ValueOf((*script.Writer)(nil)),

		// interface wrapper definitions
		"_Logger": reflect.ValueOf((*_htlpack_pkg_script_Logger)(nil)),
	}
}

// _htlpack_pkg_script_Logger is an interface wrapper for Logger type
type _htlpack_pkg_script_Logger struct {
	IValue  interface{}
	WDebugf func(template string, args ...interface{})
	WErrorf func(template string, args ...interface{})
	WInfof  func(template string, args ...interface{})
	WWarnf  func(template string, args ...interface{})
}

func (W _htlpack_pkg_script_Logger) Debugf(template string, args ...interface{}) {
	W.WDebugf(template, args...)
}
func (W _htlpack_pkg_script_Logger) Errorf(template string, args ...interface{}) {
	W.WErrorf(template, args...)
}
func (W _htlpack_pkg_script_Logger) Infof(template string, args ...interface{}) {
	W.WInfof(template, args...)
}
func (W _htlpack_pkg_script_Logger) Warnf(template string, args ...interface{}) {
	W.WWarnf(template, args...)
}
