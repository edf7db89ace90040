package eval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-delve/sbdap/pkg/cancel"
	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/engine/enginetest"
)

func testFrame() *enginetest.Frame {
	point := enginetest.Var("pt", "struct point", "",
		enginetest.Var("x", "int", "3"),
		enginetest.Var("y", "int", "4"))
	arr := enginetest.Var("arr", "int[3]", "",
		enginetest.Var("[0]", "int", "10"),
		enginetest.Var("[1]", "int", "20"),
		enginetest.Var("[2]", "int", "30"))
	ptr := enginetest.Var("p", "int *", "0x00007ffc0000",
		enginetest.Var("*p", "int", "7"))
	name := enginetest.Var("name", "const char *", "0x1000").WithSummary(`"hello"`)
	return &enginetest.Frame{
		Func:   "main",
		Line:   engine.LineEntry{File: "/src/main.c", Line: 12},
		Args:   []*enginetest.Value{enginetest.Var("argc", "int", "1")},
		Locals: []*enginetest.Value{point, arr, ptr, name, enginetest.Var("flag", "bool", "false")},
		Regs: []*enginetest.Value{enginetest.Var("General Purpose Registers", "", "",
			enginetest.Var("rip", "unsigned long", "0x0000000000401000"))},
	}
}

func TestSplitPrefix(t *testing.T) {
	tests := []struct {
		in   string
		lang Language
		expr string
	}{
		{"x + 1", Native, "x + 1"},
		{"/se a.b", Simple, "a.b"},
		{"/py  len(modules)", Python, "len(modules)"},
		{"/nat x", Native, "x"},
		{"/sex", Native, "/sex"},
	}
	for _, tc := range tests {
		lang, expr := SplitPrefix(tc.in, Native)
		require.Equal(t, tc.lang, lang, tc.in)
		require.Equal(t, tc.expr, expr, tc.in)
	}
}

func TestParseLanguage(t *testing.T) {
	for in, want := range map[string]Language{"": Native, "Simple": Simple, "python": Python, "nat": Native} {
		got, err := ParseLanguage(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseLanguage("lua")
	require.Error(t, err)
}

func TestSimple(t *testing.T) {
	ctx := Context{Frame: testFrame()}
	tests := []struct {
		expr  string
		value string
	}{
		{"argc", "1"},
		{"pt.y", "4"},
		{"arr[2]", "30"},
		{"*p", "7"},
		{"(pt).x", "3"},
		{"$rip", "0x0000000000401000"},
	}
	for _, tc := range tests {
		v, err := simple{}.Evaluate(ctx, tc.expr, cancel.Never())
		require.NoError(t, err, tc.expr)
		require.Equal(t, tc.value, v.Value(), tc.expr)
	}

	for _, bad := range []string{"pt.z", "arr[3]", "nope", "pt.", "arr[x]", "1abc"} {
		_, err := simple{}.Evaluate(ctx, bad, cancel.Never())
		require.Error(t, err, bad)
	}
	_, err := simple{}.Evaluate(ctx, "pt..x", cancel.Never())
	require.Equal(t, engine.ErrSyntax, engine.KindOf(err))
}

func TestSimpleCancelled(t *testing.T) {
	src := cancel.NewSource()
	tok := src.Token()
	defer tok.Release()
	src.Cancel()
	_, err := simple{}.Evaluate(Context{Frame: testFrame()}, "pt.x", tok)
	require.Equal(t, ErrCancelled, err)
}

func TestNative(t *testing.T) {
	f := testFrame()
	f.EvalFunc = func(expr string) (engine.Value, error) {
		return enginetest.Var(expr, "int", "42"), nil
	}
	v, err := native{}.Evaluate(Context{Frame: f}, "6*7", cancel.Never())
	require.NoError(t, err)
	require.Equal(t, "42", v.Value())

	ok, err := native{}.EvaluateBool(Context{Frame: f}, "6*7", cancel.Never())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = native{}.Evaluate(Context{}, "x", cancel.Never())
	require.Error(t, err)
}

func TestNativeTimeout(t *testing.T) {
	f := testFrame()
	f.EvalFunc = func(expr string) (engine.Value, error) {
		time.Sleep(20 * time.Millisecond)
		return enginetest.Var(expr, "int", "0"), nil
	}
	src := cancel.NewSource()
	tok := src.Token().WithDeadline(time.Now().Add(5 * time.Millisecond))
	defer tok.Release()
	_, err := native{}.Evaluate(Context{Frame: f}, "slow()", tok)
	require.Equal(t, ErrTimeout, err)
}

func TestStarlark(t *testing.T) {
	s := NewStarlark()
	s.ModulesLoaded([]engine.Module{{ID: "1", Name: "a.out"}, {ID: "2", Name: "libc.so.6"}})
	s.ModulesLoaded([]engine.Module{{ID: "1", Name: "a.out"}})
	ctx := Context{Frame: testFrame()}

	tests := []struct {
		expr  string
		value string
	}{
		{"argc + 1", "2"},
		{"pt.x * pt.y", "12"},
		{"arr[1]", "20"},
		{"name", `"hello"`},
		{"len(modules)", "2"},
		{"frame.line", "12"},
		{"[v for v in [1, 2]]", "[1, 2]"},
	}
	for _, tc := range tests {
		v, err := s.Evaluate(ctx, tc.expr, cancel.Never())
		require.NoError(t, err, tc.expr)
		require.Equal(t, tc.value, v.Value(), tc.expr)
	}

	v, err := s.Evaluate(ctx, "pt", cancel.Never())
	require.NoError(t, err)
	require.Equal(t, 2, v.NumChildren())
	require.Equal(t, "struct point", v.TypeName())

	v, err = s.Evaluate(ctx, "[1, 2, 3]", cancel.Never())
	require.NoError(t, err)
	require.Equal(t, 3, v.NumChildren())
	require.Equal(t, "[2]", v.Child(2).Name())

	ok, err := s.EvaluateBool(ctx, "argc == 1 and not flag", cancel.Never())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Evaluate(ctx, "argc +", cancel.Never())
	require.Equal(t, engine.ErrSyntax, engine.KindOf(err))
	_, err = s.Evaluate(ctx, "undefined_name", cancel.Never())
	require.Error(t, err)
}

func TestStarlarkCancel(t *testing.T) {
	s := NewStarlark()
	src := cancel.NewSource()
	tok := src.Token()
	defer tok.Release()
	go func() {
		time.Sleep(50 * time.Millisecond)
		src.Cancel()
	}()
	_, err := s.Evaluate(Context{}, "[x for x in range(1000000000) if False]", tok)
	require.Equal(t, ErrCancelled, err)
}

func TestTruthy(t *testing.T) {
	for val, want := range map[string]bool{"0": false, "1": true, "0x0": false, "0x10": true, "true": true, "false": false, "0.0": false, `'\0'`: false, "'a'": true} {
		got, err := Truthy(enginetest.Var("v", "", val))
		require.NoError(t, err, val)
		require.Equal(t, want, got, val)
	}
	_, err := Truthy(enginetest.Var("v", "", "garbage"))
	require.Error(t, err)
}

func TestSet(t *testing.T) {
	s := NewSet()
	for _, lang := range []Language{Native, Simple, Python} {
		ev, err := s.For(lang)
		require.NoError(t, err)
		require.NotNil(t, ev)
	}
	_, err := s.For("lua")
	require.Error(t, err)
}
