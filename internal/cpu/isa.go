package cpu

import "encoding/binary"

// InstrSize is the width of every instruction in bytes.
const InstrSize = 8

// Opcodes of the user-mode instruction set. Any other value, zero included,
// raises an illegal instruction trap.
const (
	OpLI      byte = 0x01 // rd = imm
	OpADDI    byte = 0x02 // rd = rs + sext(imm)
	OpMOV     byte = 0x03 // rd = rs
	OpLD      byte = 0x04 // rd = mem64[rs + sext(imm)]
	OpST      byte = 0x05 // mem64[rd + sext(imm)] = rs
	OpJMP     byte = 0x06 // ip = imm
	OpBNEZ    byte = 0x07 // if rs != 0 { ip = imm }
	OpSYSCALL byte = 0x0F
	OpEBREAK  byte = 0x10
)

// Instr is a decoded instruction.
type Instr struct {
	Op  byte
	Rd  Reg
	Rs  Reg
	Imm uint32
}

// Encode returns the little-endian wire form of in.
func (in Instr) Encode() [InstrSize]byte {
	var b [InstrSize]byte
	b[0] = in.Op
	b[1] = byte(in.Rd)
	b[2] = byte(in.Rs)
	binary.LittleEndian.PutUint32(b[4:], in.Imm)
	return b
}

// Decode parses one instruction from b, which must hold InstrSize bytes.
func Decode(b []byte) Instr {
	return Instr{
		Op:  b[0],
		Rd:  Reg(b[1]),
		Rs:  Reg(b[2]),
		Imm: binary.LittleEndian.Uint32(b[4:]),
	}
}

func sext(imm uint32) uint64 { return uint64(int64(int32(imm))) }
