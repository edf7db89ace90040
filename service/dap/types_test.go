package dap

import (
	"encoding/json"
	"testing"

	"github.com/go-delve/sbdap/pkg/sourcemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalLaunchConfig(t *testing.T) {
	in := `{
		"program": "a.out",
		"args": "one 'two three'",
		"cwd": "/work",
		"env": {"A": "1", "B": null},
		"stdio": [null, "out.txt", "pipe"],
		"terminal": "integrated",
		"stopOnEntry": true,
		"sourceMap": {"/build": "/home/me/src", "/usr/include": null},
		"evaluateTimeout": 500,
		"initCommands": ["settings set a b"]
	}`
	var lc LaunchConfig
	require.NoError(t, unmarshalLaunchAttachArgs(json.RawMessage(in), &lc))
	assert.Equal(t, "a.out", lc.Program)
	assert.Equal(t, Args{"one", "two three"}, lc.Args)
	assert.Equal(t, "/work", lc.Cwd)
	require.Contains(t, lc.Env, "B")
	assert.Nil(t, lc.Env["B"])
	assert.Equal(t, "1", *lc.Env["A"])
	assert.Equal(t, stdioNull, lc.Stdio[0].kind)
	assert.Equal(t, stdioSpec{kind: stdioFile, path: "out.txt"}, lc.Stdio[1])
	assert.Equal(t, stdioPipe, lc.Stdio[2].kind)
	assert.Equal(t, IntegratedTerminal, lc.Terminal)
	assert.True(t, lc.StopOnEntry)
	assert.Equal(t, sourcemap.Map{{From: "/build", To: "/home/me/src"}, {From: "/usr/include", To: ""}}, lc.SourceMap.toMap())
	require.NotNil(t, lc.EvaluateTimeout)
	assert.Equal(t, 500, *lc.EvaluateTimeout)
	assert.Equal(t, []string{"settings set a b"}, lc.InitCommands)
}

func TestUnmarshalLaunchConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"program type", `{"program": 1}`, `cannot unmarshal number into "program" of type string`},
		{"args type", `{"args": 1}`, `cannot use 1 as 'args' of type []string or string`},
		{"args pipe", `{"args": "a | b"}`, `invalid 'args': pipes are not supported`},
		{"stdio entries", `{"stdio": [null, null, null, null]}`, `'stdio' has 4 entries, at most 3 are allowed`},
		{"stdio type", `{"stdio": 3}`, `cannot use 3 as 'stdio' entry of type string or null`},
		{"sourceMap from", `{"sourceMap": [{"to": "/a"}]}`, `'sourceMap' entries require a 'from' path`},
		{"sourceMap type", `{"sourceMap": 3}`, `cannot use 3 as 'sourceMap'`},
		{"evaluateTimeout", `{"evaluateTimeout": "soon"}`, `cannot unmarshal string into "evaluateTimeout" of type number`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lc LaunchConfig
			err := unmarshalLaunchAttachArgs(json.RawMessage(tt.in), &lc)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStdioConfig(t *testing.T) {
	var c StdioConfig
	require.NoError(t, json.Unmarshal([]byte(`"log.txt"`), &c))
	for _, s := range c {
		require.Equal(t, stdioSpec{kind: stdioFile, path: "log.txt"}, s)
	}
	require.NoError(t, json.Unmarshal([]byte(`[null]`), &c))
	require.Equal(t, StdioConfig{{kind: stdioNull}, {}, {}}, c)
	require.NoError(t, json.Unmarshal([]byte(`["", "pipe"]`), &c))
	require.Equal(t, StdioConfig{{kind: stdioInherit}, {kind: stdioPipe}, {}}, c)
}

func TestUnmarshalAttachConfig(t *testing.T) {
	var ac AttachConfig
	require.NoError(t, unmarshalLaunchAttachArgs(json.RawMessage(`{"pid": "123"}`), &ac))
	require.Equal(t, ProcessID(123), ac.ProcessID)

	ac = AttachConfig{}
	require.NoError(t, unmarshalLaunchAttachArgs(json.RawMessage(`{"program": "server", "waitFor": true}`), &ac))
	require.Equal(t, "server", ac.Program)
	require.True(t, ac.WaitFor)

	require.Error(t, unmarshalLaunchAttachArgs(json.RawMessage(`{"pid": "abc"}`), &ac))
	require.NoError(t, unmarshalLaunchAttachArgs(nil, &ac))
}

func TestSourceMapRulesList(t *testing.T) {
	var r SourceMapRules
	require.NoError(t, json.Unmarshal([]byte(`[{"from": "/b", "to": "/c"}, {"from": "/x"}]`), &r))
	require.Equal(t, sourcemap.Map{{From: "/b", To: "/c"}, {From: "/x"}}, r.toMap())
}

func TestOverlayParams(t *testing.T) {
	params := json.RawMessage(`{"program": "default", "stopOnEntry": true, "env": {"A": "1"}}`)
	out, err := overlayParams(params, json.RawMessage(`{"program": "mine", "a.b": 1}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"program": "mine", "stopOnEntry": true, "env": {"A": "1"}, "a.b": 1}`, string(out))

	out, err = overlayParams(nil, json.RawMessage(`{"program": "mine"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"program": "mine"}`, string(out))

	out, err = overlayParams(params, nil)
	require.NoError(t, err)
	require.JSONEq(t, string(params), string(out))
}

func TestBuildEnv(t *testing.T) {
	one := "1"
	env := buildEnv([]string{"PATH=/bin", "HOME=/root", "A=0"}, map[string]*string{"A": &one, "HOME": nil}, false)
	require.Equal(t, []string{"A=1", "PATH=/bin"}, env)
	env = buildEnv([]string{"PATH=/bin"}, map[string]*string{"A": &one}, true)
	require.Equal(t, []string{"A=1"}, env)
}
