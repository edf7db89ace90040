package dap

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/go-delve/sbdap/pkg/disasm"
	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/sourcemap"
	"github.com/google/go-dap"
)

// onThreadsRequest handles 'threads' requests.
// This is a mandatory request to support.
func (s *Session) onThreadsRequest(request *dap.ThreadsRequest) (dap.Message, error) {
	threads := []dap.Thread{}
	switch {
	case s.process == nil || s.process.State().IsGone():
	case s.state != stateStopped && s.threadCache != nil:
		threads = s.threadCache
	case s.state != stateStopped:
		// Threads cannot be listed while the debuggee runs. However, the
		// protocol states that "even if a debug adapter does not support
		// multiple threads, it must implement the threads request and
		// return a single (dummy) thread".
		threads = []dap.Thread{{Id: 1, Name: "Dummy"}}
	default:
		for _, t := range s.process.Threads() {
			name := t.Name()
			if name == "" {
				name = fmt.Sprintf("Thread #%d", t.ID())
			}
			threads = append(threads, dap.Thread{Id: t.ID(), Name: name})
		}
		s.threadCache = threads
	}
	response := &dap.ThreadsResponse{
		Response: *newResponse(request.Request),
		Body:     dap.ThreadsResponseBody{Threads: threads},
	}
	return response, nil
}

// onStackTraceRequest handles 'stackTrace' requests.
// This is a mandatory request to support.
func (s *Session) onStackTraceRequest(request *dap.StackTraceRequest) (dap.Message, error) {
	args := request.Arguments
	t := s.process.ThreadByID(args.ThreadId)
	if t == nil {
		return nil, userErr(UnableToProduceStackTrace, "Unable to produce stack trace", "unknown thread %d", args.ThreadId)
	}
	levels := args.Levels
	if levels <= 0 {
		levels = s.settings.StackTraceDepth
	}
	n := t.NumFrames()
	start, end := clampRange(args.StartFrame, levels, n, 0)

	stackFrames := make([]dap.StackFrame, 0, end-start)
	for i := start; i < end; i++ {
		f := t.Frame(i)
		if f == nil {
			break
		}
		id := s.handles.create(&frameRef{threadID: t.ID(), index: i, frame: f})
		sf := dap.StackFrame{
			Id:                          id,
			Name:                        f.FunctionName(),
			InstructionPointerReference: formatAddress(f.PC()),
		}
		if sf.Name == "" {
			sf.Name = formatAddress(f.PC())
		}
		le := f.LineEntry()
		var src *dap.Source
		if le.File != "" {
			src = s.clientSource(le.File)
		}
		if src != nil {
			sf.Source = src
			sf.Line = s.toClientLine(le.Line)
			sf.Column = s.toClientColumn(le.Column)
		} else {
			sf.PresentationHint = "subtle"
		}
		stackFrames = append(stackFrames, sf)
	}
	response := &dap.StackTraceResponse{
		Response: *newResponse(request.Request),
		Body:     dap.StackTraceResponseBody{StackFrames: stackFrames, TotalFrames: n},
	}
	return response, nil
}

// onScopesRequest handles 'scopes' requests.
// This is a mandatory request to support.
func (s *Session) onScopesRequest(request *dap.ScopesRequest) (dap.Message, error) {
	f, err := s.handles.getFrame(request.Arguments.FrameId)
	if err != nil {
		return nil, err
	}
	scope := func(name string, kind scopeKind) dap.Scope {
		return dap.Scope{
			Name:               name,
			PresentationHint:   strings.ToLower(name),
			VariablesReference: s.handles.create(&scopeRef{frame: f, kind: kind}),
		}
	}
	scopes := []dap.Scope{
		scope("Locals", scopeLocals),
		scope("Statics", scopeStatics),
		scope("Registers", scopeRegisters),
	}
	response := &dap.ScopesResponse{
		Response: *newResponse(request.Request),
		Body:     dap.ScopesResponseBody{Scopes: scopes},
	}
	return response, nil
}

// container lists the values of a variables container together with the
// expression naming each value.
type container struct {
	n        int
	value    func(i int) engine.Value
	evalName func(v engine.Value) string
}

func (s *Session) container(handle int) (*container, error) {
	c, err := s.handles.getContainer(handle)
	if err != nil {
		return nil, err
	}
	switch c := c.(type) {
	case *scopeRef:
		var vals []engine.Value
		evalName := func(v engine.Value) string { return v.Name() }
		switch c.kind {
		case scopeLocals:
			vals = c.frame.frame.Variables(true, true, false)
		case scopeStatics:
			vals = c.frame.frame.Variables(false, false, true)
		case scopeRegisters:
			vals = c.frame.frame.Registers()
			// Register sets have no expression; their registers do.
			evalName = func(engine.Value) string { return "" }
		}
		return &container{
			n:        len(vals),
			value:    func(i int) engine.Value { return vals[i] },
			evalName: evalName,
		}, nil
	case *valueRef:
		parent := c
		return &container{
			n:     c.value.NumChildren(),
			value: c.value.Child,
			evalName: func(v engine.Value) string {
				return childEvalName(parent.evalName, v.Name())
			},
		}, nil
	}
	return nil, errInvalidHandle(handle)
}

// childEvalName returns an expression for the child named name of the
// value named by parent.
func childEvalName(parent, name string) string {
	switch {
	case parent == "" || name == "":
		return ""
	case strings.HasPrefix(name, "["):
		return parent + name
	case strings.HasPrefix(name, "*"):
		return "*(" + parent + ")"
	}
	return parent + "." + name
}

// onVariablesRequest handles 'variables' requests.
// This is a mandatory request to support.
func (s *Session) onVariablesRequest(request *dap.VariablesRequest) (dap.Message, error) {
	args := request.Arguments
	c, err := s.container(args.VariablesReference)
	if err != nil {
		return nil, err
	}
	start, end := clampRange(args.Start, args.Count, c.n, s.settings.MaxChildren)
	variables := make([]dap.Variable, 0, end-start)
	for i := start; i < end; i++ {
		v := c.value(i)
		if v == nil {
			continue
		}
		variables = append(variables, s.convertVariable(v, c.evalName(v)))
	}
	response := &dap.VariablesResponse{
		Response: *newResponse(request.Request),
		Body:     dap.VariablesResponseBody{Variables: variables},
	}
	return response, nil
}

// convertVariable converts v, creating a handle for its children if it
// has any.
func (s *Session) convertVariable(v engine.Value, evalName string) dap.Variable {
	dv := dap.Variable{
		Name:         v.Name(),
		Value:        valueString(v),
		EvaluateName: evalName,
	}
	if s.clientCaps.supportsVariableType {
		dv.Type = v.TypeName()
	}
	if n := v.NumChildren(); n > 0 && v.Err() == nil {
		dv.VariablesReference = s.handles.create(&valueRef{value: v, evalName: evalName})
		if strings.HasPrefix(firstChildName(v), "[") {
			dv.IndexedVariables = n
		} else {
			dv.NamedVariables = n
		}
	}
	return dv
}

func firstChildName(v engine.Value) string {
	if c := v.Child(0); c != nil {
		return c.Name()
	}
	return ""
}

// valueString renders v for display.
func valueString(v engine.Value) string {
	if err := v.Err(); err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	val, summary := v.Value(), v.Summary()
	switch {
	case val == "" && summary == "":
		if v.NumChildren() > 0 {
			return "{...}"
		}
		return ""
	case val == "":
		return summary
	case summary == "":
		return val
	}
	return val + " " + summary
}

func (s *Session) onSetVariableRequest(request *dap.SetVariableRequest) (dap.Message, error) {
	args := request.Arguments
	c, err := s.container(args.VariablesReference)
	if err != nil {
		return nil, err
	}
	var v engine.Value
	for i := 0; i < c.n; i++ {
		if cv := c.value(i); cv != nil && cv.Name() == args.Name {
			v = cv
			break
		}
	}
	if v == nil {
		return nil, userErr(UnableToSetVariable, "Unable to set variable", "no variable named %q", args.Name)
	}
	if err := v.SetValue(args.Value); err != nil {
		return nil, classify(UnableToSetVariable, "Unable to set variable", err)
	}
	dv := s.convertVariable(v, c.evalName(v))
	response := &dap.SetVariableResponse{Response: *newResponse(request.Request)}
	response.Body.Value = dv.Value
	response.Body.Type = dv.Type
	response.Body.VariablesReference = dv.VariablesReference
	response.Body.NamedVariables = dv.NamedVariables
	response.Body.IndexedVariables = dv.IndexedVariables
	return response, nil
}

// onSourceRequest fails: every source the session reports has a path.
func (s *Session) onSourceRequest(request *dap.SourceRequest) (dap.Message, error) {
	return nil, userErr(UnableToCompleteRequest, "Unable to retrieve source", "no source is available for reference %d", request.Arguments.SourceReference)
}

func (s *Session) onModulesRequest(request *dap.ModulesRequest) (dap.Message, error) {
	var mods []engine.Module
	if s.target != nil {
		mods = s.target.Modules()
	}
	args := request.Arguments
	start, end := clampRange(args.StartModule, args.ModuleCount, len(mods), 0)
	modules := make([]dap.Module, 0, end-start)
	for _, m := range mods[start:end] {
		modules = append(modules, toDAPModule(m))
	}
	response := &dap.ModulesResponse{Response: *newResponse(request.Request)}
	response.Body.Modules = modules
	response.Body.TotalModules = len(mods)
	return response, nil
}

// onLoadedSourcesRequest lists the sources the client has seen: those with
// breakpoints and those of reported stack frames.
func (s *Session) onLoadedSourcesRequest(request *dap.LoadedSourcesRequest) (dap.Message, error) {
	paths := make(map[string]string, len(s.seenSources)+len(s.breakpoints.clientPaths))
	for k, p := range s.seenSources {
		paths[k] = p
	}
	for k, p := range s.breakpoints.clientPaths {
		paths[sourcemap.Normalize(k)] = p
	}
	sources := make([]dap.Source, 0, len(paths))
	for _, p := range paths {
		sources = append(sources, dap.Source{Name: baseName(p), Path: p})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	response := &dap.LoadedSourcesResponse{Response: *newResponse(request.Request)}
	response.Body.Sources = sources
	return response, nil
}

// maxMemoryRead bounds the size of readMemory and disassemble reads.
const maxMemoryRead = 1 << 20

func (s *Session) onReadMemoryRequest(request *dap.ReadMemoryRequest) (dap.Message, error) {
	args := request.Arguments
	addr, err := parseAddress(args.MemoryReference)
	if err != nil {
		return nil, err
	}
	addr += uint64(int64(args.Offset))
	if args.Count < 0 || args.Count > maxMemoryRead {
		return nil, userErr(UnableToReadMemory, "Unable to read memory", "invalid count %d", args.Count)
	}
	response := &dap.ReadMemoryResponse{Response: *newResponse(request.Request)}
	response.Body.Address = formatAddress(addr)
	if args.Count == 0 {
		return response, nil
	}
	data, err := s.process.ReadMemory(addr, args.Count)
	if err != nil {
		s.log.Debugf("reading %d bytes at %#x: %v", args.Count, addr, err)
		response.Body.UnreadableBytes = args.Count
		return response, nil
	}
	response.Body.Data = base64.StdEncoding.EncodeToString(data)
	response.Body.UnreadableBytes = args.Count - len(data)
	return response, nil
}

func (s *Session) onDisassembleRequest(request *dap.DisassembleRequest) (dap.Message, error) {
	args := request.Arguments
	addr, err := parseAddress(args.MemoryReference)
	if err != nil {
		return nil, err
	}
	addr += uint64(int64(args.Offset))
	arch, err := disasm.ArchFromTriple(s.target.Triple())
	if err != nil {
		return nil, userErr(UnableToDisassemble, "Unable to disassemble", "%v", err)
	}
	count := args.InstructionCount
	if count < 0 || count*arch.MaxInstructionLength() > maxMemoryRead {
		return nil, userErr(UnableToDisassemble, "Unable to disassemble", "invalid instruction count %d", count)
	}
	insts := s.disassemble(arch, addr, args.InstructionOffset, count)
	response := &dap.DisassembleResponse{Response: *newResponse(request.Request)}
	response.Body.Instructions = make([]dap.DisassembledInstruction, len(insts))
	for i, inst := range insts {
		di := dap.DisassembledInstruction{
			Address:     formatAddress(inst.Addr),
			Instruction: inst.Text,
		}
		if inst.Bad {
			di.Instruction = "??"
		}
		if len(inst.Bytes) > 0 {
			di.InstructionBytes = fmt.Sprintf("% x", inst.Bytes)
		}
		response.Body.Instructions[i] = di
	}
	return response, nil
}

// disassemble returns count instructions starting offset instructions
// away from addr. Unreadable memory yields invalid instructions, so the
// result always has count entries.
func (s *Session) disassemble(arch disasm.Arch, addr uint64, offset, count int) []disasm.Instruction {
	var r []disasm.Instruction
	if offset < 0 {
		r = s.decodeBefore(arch, addr, -offset)
		if len(r) >= count {
			return r[:count]
		}
		offset = 0
	}
	need := count - len(r) + offset
	mem, err := s.process.ReadMemory(addr, need*arch.MaxInstructionLength())
	if err != nil {
		s.log.Debugf("reading code at %#x: %v", addr, err)
	}
	insts, _ := disasm.Decode(arch, disasm.GNUFlavour, mem, addr, need)
	if offset < len(insts) {
		r = append(r, insts[offset:]...)
	}
	next := addr
	if len(r) > 0 {
		last := r[len(r)-1]
		next = last.Addr + uint64(len(last.Bytes))
	}
	for len(r) < count {
		r = append(r, disasm.Instruction{Addr: next, Bad: true})
		next += uint64(minInstructionLength(arch))
	}
	return r
}

// decodeBefore returns the n instructions preceding addr. Variable length
// encodings are decoded from a guessed start, which may resynchronize a
// few instructions late.
func (s *Session) decodeBefore(arch disasm.Arch, addr uint64, n int) []disasm.Instruction {
	span := uint64(n * arch.MaxInstructionLength())
	if span > addr {
		span = addr
	}
	start := addr - span
	var insts []disasm.Instruction
	if span > 0 {
		mem, err := s.process.ReadMemory(start, int(span))
		if err != nil {
			s.log.Debugf("reading code at %#x: %v", start, err)
		}
		insts, _ = disasm.Decode(arch, disasm.GNUFlavour, mem, start, len(mem))
	}
	for len(insts) > 0 {
		last := insts[len(insts)-1]
		if last.Addr+uint64(len(last.Bytes)) <= addr {
			break
		}
		insts = insts[:len(insts)-1]
	}
	if len(insts) > n {
		return insts[len(insts)-n:]
	}
	step := uint64(minInstructionLength(arch))
	first := addr
	if len(insts) > 0 {
		first = insts[0].Addr
	}
	pad := make([]disasm.Instruction, n-len(insts))
	for i := len(pad) - 1; i >= 0; i-- {
		if first >= step {
			first -= step
		}
		pad[i] = disasm.Instruction{Addr: first, Bad: true}
	}
	return append(pad, insts...)
}

func minInstructionLength(arch disasm.Arch) int {
	if arch == disasm.ARM64 {
		return 4
	}
	return 1
}
