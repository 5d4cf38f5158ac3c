package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParams_String(t *testing.T) {
	p := Params{"s": "x", "n": 3, "nil": nil}
	assert.Equal(t, "x", p.String("s"))
	assert.Equal(t, "3", p.String("n"))
	assert.Equal(t, "", p.String("nil"))
	assert.Equal(t, "", p.String("absent"))
}

func TestParams_Headers(t *testing.T) {
	assert.Equal(t, map[string]string{"A": "1"}, Params{ParamHeaders: map[string]string{"A": "1"}}.Headers())
	assert.Equal(t, map[string]string{"X-Id": "7"}, Params{ParamHeaders: map[string]any{"X-Id": 7}}.Headers())
	assert.Empty(t, Params{}.Headers())
	assert.Empty(t, Params{ParamHeaders: "nope"}.Headers())
}

func TestParams_HeadersFromYAML(t *testing.T) {
	var p Params
	require.NoError(t, yaml.Unmarshal([]byte("path: /a.md\n__ow_headers:\n  X-Request-Id: abc\n  X-Retries: 2\n"), &p))

	assert.Equal(t, map[string]string{"X-Request-Id": "abc", "X-Retries": "2"}, p.Headers())
}

func TestSecrets(t *testing.T) {
	s := Secrets{"B": "2", "A": " ", "C": "3"}
	assert.Equal(t, "2", s.Get("B", "def"))
	assert.Equal(t, "def", s.Get("A", "def"))
	assert.Equal(t, "def", s.Get("Z", "def"))
	assert.Equal(t, []string{"A", "B", "C"}, s.Keys())
	assert.Empty(t, Secrets(nil).Keys())
}
