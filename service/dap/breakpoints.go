package dap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/google/go-dap"
)

type hitOp int

const (
	hitGE hitOp = iota
	hitGT
	hitEQ
	hitLT
	hitLE
	hitMod
)

// hitCondition decides from the hit count whether a breakpoint stops.
type hitCondition struct {
	op hitOp
	n  int
}

var hitConditionRE = regexp.MustCompile(`^\s*(>=|<=|==|=|>|<|%)?\s*([0-9]+)\s*$`)

// parseHitCondition parses "N", ">= N", "> N", "== N", "< N", "<= N" or
// "% N". A bare number stops from the Nth hit on.
func parseHitCondition(s string) (*hitCondition, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	m := hitConditionRE.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("invalid hit condition %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("invalid hit condition %q", s)
	}
	hc := &hitCondition{n: n}
	switch m[1] {
	case "", ">=":
		hc.op = hitGE
	case ">":
		hc.op = hitGT
	case "=", "==":
		hc.op = hitEQ
	case "<":
		hc.op = hitLT
	case "<=":
		hc.op = hitLE
	case "%":
		if n == 0 {
			return nil, fmt.Errorf("invalid hit condition %q: modulo by zero", s)
		}
		hc.op = hitMod
	}
	return hc, nil
}

func (hc *hitCondition) matches(count int) bool {
	if hc == nil {
		return true
	}
	switch hc.op {
	case hitGT:
		return count > hc.n
	case hitEQ:
		return count == hc.n
	case hitLT:
		return count < hc.n
	case hitLE:
		return count <= hc.n
	case hitMod:
		return count%hc.n == 0
	}
	return count >= hc.n
}

// logSegment is literal text or, when expr is set, an expression whose
// value is interpolated.
type logSegment struct {
	text string
	expr string
}

// parseLogMessage splits a log message into literal text and {expr}
// interpolations. "{{" and "}}" stand for literal braces.
func parseLogMessage(s string) ([]logSegment, error) {
	var segs []logSegment
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			segs = append(segs, logSegment{text: buf.String()})
			buf.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			buf.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			buf.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated '{' in log message %q", s)
			}
			expr := strings.TrimSpace(s[i+1 : i+1+end])
			if expr == "" {
				return nil, fmt.Errorf("empty '{}' in log message %q", s)
			}
			flush()
			segs = append(segs, logSegment{expr: expr})
			i += end + 1
		default:
			buf.WriteByte(c)
		}
	}
	flush()
	return segs, nil
}

// bpOptions are the adapter-side settings of a breakpoint.
type bpOptions struct {
	condition    string
	hitCondition string
	logMessage   string
	hit          *hitCondition
	log          []logSegment
}

func newBpOptions(condition, hitCondition, logMessage string) (bpOptions, error) {
	o := bpOptions{
		condition:    strings.TrimSpace(condition),
		hitCondition: hitCondition,
		logMessage:   logMessage,
	}
	var err error
	if o.hit, err = parseHitCondition(hitCondition); err != nil {
		return o, err
	}
	if logMessage != "" {
		if o.log, err = parseLogMessage(logMessage); err != nil {
			return o, err
		}
	}
	return o, nil
}

func (o *bpOptions) sameAs(p *bpOptions) bool {
	return o.condition == p.condition && o.hitCondition == p.hitCondition && o.logMessage == p.logMessage
}

// bpState is a breakpoint as stored by the adapter.
type bpState struct {
	bpOptions
	// bp is nil until the engine breakpoint exists.
	bp engine.Breakpoint
	// err is why the breakpoint could not be set.
	err  error
	hits int
	// verified is what the client was last told.
	verified bool
	// engineCond is the condition set on bp.
	engineCond string
}

func (st *bpState) setOptions(o bpOptions) {
	if o.hitCondition != st.hitCondition {
		st.hits = 0
	}
	st.bpOptions = o
}

func (st *bpState) isLogpoint() bool {
	return st.logMessage != ""
}

type breakpointKey struct {
	line, column int
}

type sourceBreakpoint struct {
	bpState
	line, column int
}

func (sb *sourceBreakpoint) key() breakpointKey {
	return breakpointKey{sb.line, sb.column}
}

// breakpointDiff is the effect of replacing the breakpoints of a source.
type breakpointDiff struct {
	// list is the new stored list, in request order.
	list []*sourceBreakpoint
	// response holds one entry per requested breakpoint: its element of
	// list, or nil for a duplicate.
	response []*sourceBreakpoint
	add      []*sourceBreakpoint
	remove   []*sourceBreakpoint
	// updated are kept breakpoints whose options changed.
	updated []*sourceBreakpoint
}

// diffBreakpoints compares the stored breakpoints of a source with the
// requested ones. Breakpoints at the same line and column are kept, so
// that their engine breakpoints survive.
func diffBreakpoints(old []*sourceBreakpoint, want []dap.SourceBreakpoint) *breakpointDiff {
	d := &breakpointDiff{}
	oldByKey := make(map[breakpointKey]*sourceBreakpoint, len(old))
	for _, o := range old {
		oldByKey[o.key()] = o
	}
	seen := make(map[breakpointKey]bool, len(want))
	for _, w := range want {
		k := breakpointKey{w.Line, w.Column}
		if seen[k] {
			d.response = append(d.response, nil)
			continue
		}
		seen[k] = true
		opts, err := newBpOptions(w.Condition, w.HitCondition, w.LogMessage)
		if o, ok := oldByKey[k]; ok && err == nil {
			delete(oldByKey, k)
			if !o.sameAs(&opts) {
				o.setOptions(opts)
				d.updated = append(d.updated, o)
			}
			if o.bp == nil {
				o.err = nil
				d.add = append(d.add, o)
			}
			d.list = append(d.list, o)
			d.response = append(d.response, o)
			continue
		}
		nb := &sourceBreakpoint{line: w.Line, column: w.Column}
		nb.bpOptions = opts
		nb.err = err
		d.list = append(d.list, nb)
		d.response = append(d.response, nb)
		if err == nil {
			d.add = append(d.add, nb)
		}
	}
	for _, o := range old {
		if oldByKey[o.key()] == o && o.bp != nil {
			d.remove = append(d.remove, o)
		}
	}
	return d
}

type functionBreakpoint struct {
	bpState
	name string
}

// functionDiff is the effect of replacing the function breakpoints.
type functionDiff struct {
	list     []*functionBreakpoint
	response []*functionBreakpoint
	add      []*functionBreakpoint
	remove   []*functionBreakpoint
	updated  []*functionBreakpoint
}

// diffFunctionBreakpoints is diffBreakpoints for function breakpoints,
// which are identified by name.
func diffFunctionBreakpoints(old []*functionBreakpoint, want []dap.FunctionBreakpoint) *functionDiff {
	d := &functionDiff{}
	oldByName := make(map[string]*functionBreakpoint, len(old))
	for _, o := range old {
		oldByName[o.name] = o
	}
	seen := make(map[string]bool, len(want))
	for _, w := range want {
		name := strings.TrimSpace(w.Name)
		if seen[name] {
			d.response = append(d.response, nil)
			continue
		}
		seen[name] = true
		opts, err := newBpOptions(w.Condition, w.HitCondition, "")
		if err == nil && name == "" {
			err = fmt.Errorf("empty function name")
		}
		if o, ok := oldByName[name]; ok && err == nil {
			delete(oldByName, name)
			if !o.sameAs(&opts) {
				o.setOptions(opts)
				d.updated = append(d.updated, o)
			}
			if o.bp == nil {
				o.err = nil
				d.add = append(d.add, o)
			}
			d.list = append(d.list, o)
			d.response = append(d.response, o)
			continue
		}
		nb := &functionBreakpoint{name: name}
		nb.bpOptions = opts
		nb.err = err
		d.list = append(d.list, nb)
		d.response = append(d.response, nb)
		if err == nil {
			d.add = append(d.add, nb)
		}
	}
	for _, o := range old {
		if oldByName[o.name] == o && o.bp != nil {
			d.remove = append(d.remove, o)
		}
	}
	return d
}

// breakpointMap holds the breakpoints of a session.
type breakpointMap struct {
	// sources is keyed by normalized client path.
	sources map[string][]*sourceBreakpoint
	// clientPaths remembers the path of each source as the client sent it.
	clientPaths map[string]string
	functions   []*functionBreakpoint
	// byID indexes every breakpoint that has an engine breakpoint.
	byID map[int]*bpState
}

func newBreakpointMap() *breakpointMap {
	return &breakpointMap{
		sources:     make(map[string][]*sourceBreakpoint),
		clientPaths: make(map[string]string),
		byID:        make(map[int]*bpState),
	}
}

func (m *breakpointMap) set(path, clientPath string, list []*sourceBreakpoint) {
	if len(list) == 0 {
		delete(m.sources, path)
		delete(m.clientPaths, path)
		return
	}
	m.sources[path] = list
	m.clientPaths[path] = clientPath
}

func (m *breakpointMap) bind(st *bpState, bp engine.Breakpoint) {
	st.bp = bp
	st.err = nil
	st.engineCond = ""
	m.byID[bp.ID()] = st
}

func (m *breakpointMap) unbind(st *bpState) {
	if st.bp != nil {
		delete(m.byID, st.bp.ID())
		st.bp = nil
	}
}

// toDAP converts a stored breakpoint for a response or event. st is nil
// for a duplicate.
func (st *bpState) toDAP(requestedLine int, source *dap.Source, toClient func(string) string) dap.Breakpoint {
	r := dap.Breakpoint{Line: requestedLine, Source: source}
	switch {
	case st == nil:
		r.Message = "duplicate breakpoint"
	case st.err != nil:
		r.Message = st.err.Error()
	case st.bp == nil:
		r.Message = "breakpoint pending until the debuggee starts"
	default:
		r.Id = st.bp.ID()
		if st.bp.NumLocations() == 0 {
			r.Message = "no code at this location yet"
			break
		}
		r.Verified = true
		if loc, ok := st.bp.Location(); ok {
			if loc.Line > 0 {
				r.Line = loc.Line
			}
			if source == nil && loc.File != "" {
				p := toClient(loc.File)
				r.Source = &dap.Source{Name: baseName(p), Path: p}
			}
		}
	}
	return r
}
