package eval

import (
	"github.com/go-delve/sbdap/pkg/cancel"
	"github.com/go-delve/sbdap/pkg/engine"
)

// native hands expressions to the engine.
type native struct{}

func (native) Evaluate(ctx Context, expr string, tok *cancel.Token) (engine.Value, error) {
	if err := checkCancelled(tok); err != nil {
		return nil, err
	}
	if ctx.Frame == nil {
		return nil, noFrame()
	}
	v, err := ctx.Frame.Evaluate(expr)
	if err := checkCancelled(tok); err != nil {
		return nil, err
	}
	return v, err
}

func (n native) EvaluateBool(ctx Context, expr string, tok *cancel.Token) (bool, error) {
	v, err := n.Evaluate(ctx, expr, tok)
	if err != nil {
		return false, err
	}
	return Truthy(v)
}

func (native) ModulesLoaded([]engine.Module) {}
