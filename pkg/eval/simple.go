package eval

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-delve/sbdap/pkg/cancel"
	"github.com/go-delve/sbdap/pkg/engine"
)

// simple resolves variable paths through the frame's variables without
// calling the engine's expression evaluator.
type simple struct{}

type opKind int

const (
	opVar opKind = iota
	opMember
	opIndex
	opDeref
)

type op struct {
	kind  opKind
	name  string
	index int
}

func (simple) Evaluate(ctx Context, expr string, tok *cancel.Token) (engine.Value, error) {
	ops, err := parsePath(expr)
	if err != nil {
		return nil, err
	}
	if ctx.Frame == nil {
		return nil, noFrame()
	}
	var cur engine.Value
	for _, o := range ops {
		if err := checkCancelled(tok); err != nil {
			return nil, err
		}
		switch o.kind {
		case opVar:
			cur = lookupVar(ctx.Frame, o.name)
			if cur == nil {
				return nil, engine.Errorf(engine.ErrNotFound, "evaluate", "no variable named %q", o.name)
			}
		case opMember:
			c := childByName(cur, o.name)
			if c == nil {
				return nil, engine.Errorf(engine.ErrNotFound, "evaluate", "%s has no member %q", cur.Name(), o.name)
			}
			cur = c
		case opIndex:
			if o.index < 0 || o.index >= cur.NumChildren() {
				return nil, engine.Errorf(engine.ErrInvalidArgument, "evaluate", "index %d out of range for %s", o.index, cur.Name())
			}
			cur = cur.Child(o.index)
		case opDeref:
			cur = deref(cur)
		}
		if err := cur.Err(); err != nil {
			return nil, err
		}
	}
	return cur, checkCancelled(tok)
}

func (s simple) EvaluateBool(ctx Context, expr string, tok *cancel.Token) (bool, error) {
	v, err := s.Evaluate(ctx, expr, tok)
	if err != nil {
		return false, err
	}
	return Truthy(v)
}

func (simple) ModulesLoaded([]engine.Module) {}

func lookupVar(f engine.Frame, name string) engine.Value {
	for _, v := range f.Variables(true, true, true) {
		if v.Name() == name {
			return v
		}
	}
	if strings.HasPrefix(name, "$") {
		return findRegister(f.Registers(), name[1:])
	}
	return nil
}

// findRegister searches register sets, whose children are the registers.
func findRegister(sets []engine.Value, name string) engine.Value {
	for _, set := range sets {
		if c := childByName(set, name); c != nil {
			return c
		}
	}
	return nil
}

func childByName(v engine.Value, name string) engine.Value {
	n := v.NumChildren()
	for i := 0; i < n; i++ {
		if c := v.Child(i); c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}

// deref follows a pointer to a scalar. Pointers to aggregates already
// expose the pointee's members as children and are returned unchanged.
func deref(v engine.Value) engine.Value {
	if v.NumChildren() == 1 {
		if c := v.Child(0); c != nil && strings.HasPrefix(c.Name(), "*") {
			return c
		}
	}
	return v
}

func syntaxError(expr string, pos int, format string, args ...interface{}) error {
	return engine.Errorf(engine.ErrSyntax, "evaluate", "%s at column %d of %q", fmt.Sprintf(format, args...), pos+1, expr)
}

// parsePath parses expressions of the form *a.b[3]->c.
func parsePath(expr string) ([]op, error) {
	p := &pathParser{s: expr}
	p.skipSpace()
	derefs := 0
	for p.peek() == '*' {
		derefs++
		p.pos++
		p.skipSpace()
	}
	var ops []op
	if p.peek() == '(' {
		p.pos++
		end := matchParen(expr, p.pos)
		if end < 0 {
			return nil, syntaxError(expr, p.pos, "unbalanced parenthesis")
		}
		inner, err := parsePath(expr[p.pos:end])
		if err != nil {
			return nil, err
		}
		ops = inner
		p.pos = end + 1
	} else {
		name := p.ident()
		if name == "" {
			return nil, syntaxError(expr, p.pos, "expected identifier")
		}
		ops = append(ops, op{kind: opVar, name: name})
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.s) {
			break
		}
		switch {
		case p.peek() == '.':
			p.pos++
			name := p.ident()
			if name == "" {
				return nil, syntaxError(expr, p.pos, "expected member name")
			}
			ops = append(ops, op{kind: opMember, name: name})
		case strings.HasPrefix(p.s[p.pos:], "->"):
			p.pos += 2
			name := p.ident()
			if name == "" {
				return nil, syntaxError(expr, p.pos, "expected member name")
			}
			ops = append(ops, op{kind: opDeref}, op{kind: opMember, name: name})
		case p.peek() == '[':
			p.pos++
			start := p.pos
			for p.pos < len(p.s) && p.s[p.pos] != ']' {
				p.pos++
			}
			if p.pos >= len(p.s) {
				return nil, syntaxError(expr, start, "missing ]")
			}
			idx, err := strconv.Atoi(strings.TrimSpace(p.s[start:p.pos]))
			if err != nil {
				return nil, syntaxError(expr, start, "index is not an integer")
			}
			p.pos++
			ops = append(ops, op{kind: opIndex, index: idx})
		default:
			return nil, syntaxError(expr, p.pos, "unexpected %q", p.s[p.pos:p.pos+1])
		}
	}
	for i := 0; i < derefs; i++ {
		ops = append(ops, op{kind: opDeref})
	}
	return ops, nil
}

type pathParser struct {
	s   string
	pos int
}

func (p *pathParser) peek() byte {
	if p.pos < len(p.s) {
		return p.s[p.pos]
	}
	return 0
}

func (p *pathParser) skipSpace() {
	for p.pos < len(p.s) && p.s[p.pos] == ' ' {
		p.pos++
	}
}

func (p *pathParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) {
		r := rune(p.s[p.pos])
		if r == '_' || r == '$' || unicode.IsLetter(r) || (p.pos > start && unicode.IsDigit(r)) {
			p.pos++
			continue
		}
		break
	}
	return p.s[start:p.pos]
}

func matchParen(s string, pos int) int {
	depth := 1
	for i := pos; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
