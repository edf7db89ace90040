// Package disasm decodes machine code read from the debuggee.
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// Arch is an instruction set.
type Arch string

const (
	AMD64 Arch = "amd64"
	I386  Arch = "386"
	ARM64 Arch = "arm64"
)

// Flavour is an assembly syntax.
type Flavour int

const (
	GNUFlavour Flavour = iota
	IntelFlavour
)

// ArchFromTriple returns the instruction set of a target triple such as
// "x86_64-unknown-linux-gnu".
func ArchFromTriple(triple string) (Arch, error) {
	cpu := triple
	if i := strings.IndexByte(triple, '-'); i >= 0 {
		cpu = triple[:i]
	}
	switch cpu {
	case "x86_64", "x86_64h", "amd64":
		return AMD64, nil
	case "i386", "i486", "i586", "i686", "x86":
		return I386, nil
	case "aarch64", "arm64", "arm64e":
		return ARM64, nil
	}
	return "", fmt.Errorf("disassembly of %q is not supported", triple)
}

// MaxInstructionLength returns the longest encoding of arch.
func (a Arch) MaxInstructionLength() int {
	if a == ARM64 {
		return 4
	}
	return 15
}

// Instruction is one decoded instruction.
type Instruction struct {
	Addr  uint64
	Bytes []byte
	Text  string
	// Bad is set for bytes that do not decode to a valid instruction.
	Bad bool
}

// Decode decodes up to max instructions from mem, which was read at addr.
// Undecodable bytes produce Bad instructions so that decoding always makes
// progress.
func Decode(arch Arch, flavour Flavour, mem []byte, addr uint64, max int) ([]Instruction, error) {
	var decode func([]byte, uint64) (Instruction, int)
	switch arch {
	case AMD64:
		decode = x86Decoder(64, flavour)
	case I386:
		decode = x86Decoder(32, flavour)
	case ARM64:
		decode = arm64Decode
	default:
		return nil, fmt.Errorf("unsupported architecture %q", arch)
	}
	var r []Instruction
	for len(mem) > 0 && len(r) < max {
		inst, n := decode(mem, addr)
		if n > len(mem) {
			n = len(mem)
		}
		inst.Addr = addr
		inst.Bytes = append([]byte(nil), mem[:n]...)
		r = append(r, inst)
		mem = mem[n:]
		addr += uint64(n)
	}
	return r, nil
}

func x86Decoder(mode int, flavour Flavour) func([]byte, uint64) (Instruction, int) {
	return func(mem []byte, pc uint64) (Instruction, int) {
		inst, err := x86asm.Decode(mem, mode)
		if err != nil || inst.Len == 0 {
			return Instruction{Text: "(bad)", Bad: true}, 1
		}
		var text string
		if flavour == IntelFlavour {
			text = x86asm.IntelSyntax(inst, pc, nil)
		} else {
			text = x86asm.GNUSyntax(inst, pc, nil)
		}
		return Instruction{Text: text}, inst.Len
	}
}

func arm64Decode(mem []byte, pc uint64) (Instruction, int) {
	if len(mem) < 4 {
		return Instruction{Text: "(bad)", Bad: true}, len(mem)
	}
	inst, err := arm64asm.Decode(mem)
	if err != nil {
		return Instruction{Text: "(bad)", Bad: true}, 4
	}
	return Instruction{Text: arm64asm.GNUSyntax(inst)}, 4
}
