package dap

import (
	"bytes"
	"fmt"

	"github.com/go-delve/sbdap/pkg/config"
	"github.com/go-delve/sbdap/pkg/eval"
	"github.com/go-delve/sbdap/pkg/sourcemap"
)

// sessionSettings are the settings of a session that the debug console
// "config" command can change.
type sessionSettings struct {
	// ExpressionLanguage is the default language of expressions.
	ExpressionLanguage string `cfgName:"expressionLanguage"`
	// EvaluateTimeout is the evaluation time limit in milliseconds, 0 for
	// none.
	EvaluateTimeout int `cfgName:"evaluateTimeout"`
	// MaxChildren caps the children returned by a variables request that
	// does not page.
	MaxChildren int `cfgName:"maxChildren"`
	// StackTraceDepth caps the frames returned by a stackTrace request
	// that does not page.
	StackTraceDepth int `cfgName:"stackTraceDepth"`
	// SourceMap is edited with "config sourceMap".
	SourceMap sourcemap.Map `cfgName:"sourceMap"`
	// SourcePath is listed only.
	SourcePath []string `cfgName:"sourcePath"`
}

var defaultSettings = sessionSettings{
	ExpressionLanguage: string(eval.Native),
	MaxChildren:        1000,
	StackTraceDepth:    50,
}

func listConfig(args *sessionSettings) string {
	var buf bytes.Buffer
	config.ConfigureList(&buf, args, "cfgName")
	return buf.String()
}

// configureSet applies "config NAME VALUE". It reports whether a setting
// changed.
func configureSet(sargs *sessionSettings, args string) (bool, string, error) {
	v := config.Split2PartsBySpace(args)

	cfgname := v[0]
	var rest string
	if len(v) == 2 {
		rest = v[1]
	}

	field := config.ConfigureFindFieldByName(sargs, cfgname, "cfgName")
	if !field.CanAddr() {
		return false, "", fmt.Errorf("%q is not a configuration parameter", cfgname)
	}

	// If there were no arguments provided, just list the value.
	if len(v) == 1 || rest == "" {
		return false, config.ConfigureListByName(sargs, cfgname, "cfgName"), nil
	}

	switch cfgname {
	case "sourceMap":
		if err := configureSetSourceMap(sargs, rest); err != nil {
			return false, "", err
		}
		return true, config.ConfigureListByName(sargs, cfgname, "cfgName"), nil
	case "sourcePath":
		return false, "", fmt.Errorf("%q can only be set in the launch configuration", cfgname)
	case "expressionLanguage":
		lang, err := eval.ParseLanguage(rest)
		if err != nil {
			return false, "", err
		}
		rest = string(lang)
	}

	if err := config.ConfigureSetSimple(rest, cfgname, field); err != nil {
		return false, "", err
	}
	return true, config.ConfigureListByName(sargs, cfgname, "cfgName"), nil
}

// configureSetSourceMap adds, replaces or, given only a prefix, removes a
// source map rule.
func configureSetSourceMap(args *sessionSettings, rest string) error {
	argv := config.SplitQuotedFields(rest, '"')
	switch len(argv) {
	case 1: // delete rule
		for i := range args.SourceMap {
			if args.SourceMap[i].From == argv[0] {
				m := append(sourcemap.Map(nil), args.SourceMap[:i]...)
				args.SourceMap = append(m, args.SourceMap[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("could not find rule for %q", argv[0])
	case 2: // add or replace rule
		for i := range args.SourceMap {
			if args.SourceMap[i].From == argv[0] {
				args.SourceMap[i].To = argv[1]
				return nil
			}
		}
		args.SourceMap = append(args.SourceMap, sourcemap.Rule{From: argv[0], To: argv[1]})
	default:
		return fmt.Errorf("too many arguments to \"config sourceMap\"")
	}
	return nil
}
