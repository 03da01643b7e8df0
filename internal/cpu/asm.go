package cpu

// Assembler builds a user program image placed at a fixed base address.
type Assembler struct {
	base uint64
	buf  []byte
}

// NewAssembler starts an image that will be loaded at base.
func NewAssembler(base uint64) *Assembler {
	return &Assembler{base: base}
}

// PC returns the address of the next emitted instruction.
func (a *Assembler) PC() uint64 { return a.base + uint64(len(a.buf)) }

// Bytes returns the image.
func (a *Assembler) Bytes() []byte { return a.buf }

func (a *Assembler) emit(in Instr) *Assembler {
	b := in.Encode()
	a.buf = append(a.buf, b[:]...)
	return a
}

func (a *Assembler) Li(rd Reg, imm uint32) *Assembler {
	return a.emit(Instr{Op: OpLI, Rd: rd, Imm: imm})
}

func (a *Assembler) Addi(rd, rs Reg, imm int32) *Assembler {
	return a.emit(Instr{Op: OpADDI, Rd: rd, Rs: rs, Imm: uint32(imm)})
}

func (a *Assembler) Mov(rd, rs Reg) *Assembler {
	return a.emit(Instr{Op: OpMOV, Rd: rd, Rs: rs})
}

func (a *Assembler) Ld(rd, rs Reg, off int32) *Assembler {
	return a.emit(Instr{Op: OpLD, Rd: rd, Rs: rs, Imm: uint32(off)})
}

func (a *Assembler) St(rd, rs Reg, off int32) *Assembler {
	return a.emit(Instr{Op: OpST, Rd: rd, Rs: rs, Imm: uint32(off)})
}

func (a *Assembler) Jmp(target uint64) *Assembler {
	return a.emit(Instr{Op: OpJMP, Imm: uint32(target)})
}

func (a *Assembler) Bnez(rs Reg, target uint64) *Assembler {
	return a.emit(Instr{Op: OpBNEZ, Rs: rs, Imm: uint32(target)})
}

func (a *Assembler) Syscall() *Assembler { return a.emit(Instr{Op: OpSYSCALL}) }

func (a *Assembler) Ebreak() *Assembler { return a.emit(Instr{Op: OpEBREAK}) }

// Raw emits an instruction with an arbitrary opcode.
func (a *Assembler) Raw(op byte) *Assembler { return a.emit(Instr{Op: op}) }

// Data appends p and pads the image back to instruction alignment. It
// returns the address p was placed at.
func (a *Assembler) Data(p []byte) uint64 {
	addr := a.PC()
	a.buf = append(a.buf, p...)
	for len(a.buf)%InstrSize != 0 {
		a.buf = append(a.buf, 0)
	}
	return addr
}

// Pad extends the image with zero bytes up to n bytes.
func (a *Assembler) Pad(n int) *Assembler {
	for len(a.buf) < n {
		a.buf = append(a.buf, 0)
	}
	return a
}
