package cpu

import (
	"encoding/binary"
	"rvos/kernel"
)

var (
	errUndefinedLabel = &kernel.Error{Module: "asm", Message: "undefined label"}
	errOutOfRange     = &kernel.Error{Module: "asm", Message: "branch target out of range"}
	errDuplicateLabel = &kernel.Error{Module: "asm", Message: "duplicate label"}
	errImmediate      = &kernel.Error{Module: "asm", Message: "immediate out of range"}
)

type fixupKind uint8

const (
	fixBranch fixupKind = iota
	fixJal
	fixPCRel
)

type fixup struct {
	at    int
	label string
	kind  fixupKind
}

// Assembler emits RV64IM machine code. Instructions referencing labels are
// patched once Assemble is called, so forward references are allowed. Code
// is position independent unless Dword is used to store absolute addresses.
type Assembler struct {
	base   uint64
	buf    []byte
	labels map[string]int
	fixups []fixup
	err    *kernel.Error
}

// NewAssembler returns an assembler whose first byte will live at base.
func NewAssembler(base uint64) *Assembler {
	return &Assembler{base: base, labels: make(map[string]int)}
}

// PC returns the address of the next emitted byte.
func (a *Assembler) PC() uint64 { return a.base + uint64(len(a.buf)) }

// Label binds name to the current position.
func (a *Assembler) Label(name string) {
	if _, exists := a.labels[name]; exists {
		a.fail(errDuplicateLabel, name)
		return
	}
	a.labels[name] = len(a.buf)
}

// Symbol returns the address bound to a label.
func (a *Assembler) Symbol(name string) (uint64, bool) {
	off, ok := a.labels[name]
	return a.base + uint64(off), ok
}

// Assemble resolves label references and returns the code.
func (a *Assembler) Assemble() ([]byte, *kernel.Error) {
	for _, f := range a.fixups {
		target, ok := a.labels[f.label]
		if !ok {
			a.fail(errUndefinedLabel, f.label)
			break
		}

		off := int64(target - f.at)
		inst := binary.LittleEndian.Uint32(a.buf[f.at:])
		switch f.kind {
		case fixBranch:
			if off < -4096 || off >= 4096 {
				a.fail(errOutOfRange, f.label)
			}
			binary.LittleEndian.PutUint32(a.buf[f.at:], inst|encodeBImm(off))
		case fixJal:
			if off < -1<<20 || off >= 1<<20 {
				a.fail(errOutOfRange, f.label)
			}
			binary.LittleEndian.PutUint32(a.buf[f.at:], inst|encodeJImm(off))
		case fixPCRel:
			hi := (off + 0x800) >> 12
			lo := off - hi<<12
			binary.LittleEndian.PutUint32(a.buf[f.at:], inst|uint32(hi&0xfffff)<<12)
			next := binary.LittleEndian.Uint32(a.buf[f.at+4:])
			binary.LittleEndian.PutUint32(a.buf[f.at+4:], next|uint32(lo&0xfff)<<20)
		}
	}

	if a.err != nil {
		return nil, a.err
	}
	return a.buf, nil
}

// MustAssemble is like Assemble but panics on error. It is meant for code
// built from constant input.
func (a *Assembler) MustAssemble() []byte {
	code, err := a.Assemble()
	if err != nil {
		panic(err)
	}
	return code
}

func (a *Assembler) fail(err *kernel.Error, label string) {
	if a.err == nil {
		a.err = err.WithDetail(label)
	}
}

// Emit appends a raw instruction word.
func (a *Assembler) Emit(inst uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, inst)
}

// Bytes appends raw data.
func (a *Assembler) Bytes(data []byte) { a.buf = append(a.buf, data...) }

// Asciz appends a NUL terminated string.
func (a *Assembler) Asciz(s string) {
	a.buf = append(a.buf, s...)
	a.buf = append(a.buf, 0)
}

// Dword appends a 64-bit little-endian value.
func (a *Assembler) Dword(v uint64) { a.buf = binary.LittleEndian.AppendUint64(a.buf, v) }

// Align pads with zero bytes up to a multiple of n.
func (a *Assembler) Align(n int) {
	for len(a.buf)%n != 0 {
		a.buf = append(a.buf, 0)
	}
}

func encodeR(op, funct3, funct7 uint32, rd, rs1, rs2 Reg) uint32 {
	return funct7<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | op
}

func encodeI(op, funct3 uint32, rd, rs1 Reg, imm int64) uint32 {
	return uint32(imm&0xfff)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | op
}

func encodeS(op, funct3 uint32, rs1, rs2 Reg, imm int64) uint32 {
	return uint32((imm>>5)&0x7f)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(imm&0x1f)<<7 | op
}

func encodeBImm(imm int64) uint32 {
	return uint32((imm>>12)&1)<<31 | uint32((imm>>5)&0x3f)<<25 | uint32((imm>>1)&0xf)<<8 | uint32((imm>>11)&1)<<7
}

func encodeJImm(imm int64) uint32 {
	return uint32((imm>>20)&1)<<31 | uint32((imm>>1)&0x3ff)<<21 | uint32((imm>>11)&1)<<20 | uint32((imm>>12)&0xff)<<12
}

func (a *Assembler) checkImm12(imm int64, what string) {
	if imm < -2048 || imm > 2047 {
		a.fail(errImmediate, what)
	}
}

func (a *Assembler) itype(op, funct3 uint32, rd, rs1 Reg, imm int64, what string) {
	a.checkImm12(imm, what)
	a.Emit(encodeI(op, funct3, rd, rs1, imm))
}

func (a *Assembler) branch(funct3 uint32, rs1, rs2 Reg, label string) {
	a.fixups = append(a.fixups, fixup{at: len(a.buf), label: label, kind: fixBranch})
	a.Emit(encodeR(opBranch, funct3, 0, 0, rs1, rs2))
}

// Lui loads imm20 << 12 into rd.
func (a *Assembler) Lui(rd Reg, imm20 int64) {
	a.Emit(uint32(imm20&0xfffff)<<12 | uint32(rd)<<7 | opLui)
}

// Auipc adds imm20 << 12 to the pc.
func (a *Assembler) Auipc(rd Reg, imm20 int64) {
	a.Emit(uint32(imm20&0xfffff)<<12 | uint32(rd)<<7 | opAuipc)
}

// Jal jumps to label storing the return address in rd.
func (a *Assembler) Jal(rd Reg, label string) {
	a.fixups = append(a.fixups, fixup{at: len(a.buf), label: label, kind: fixJal})
	a.Emit(uint32(rd)<<7 | opJal)
}

// Jalr jumps to rs1+imm storing the return address in rd.
func (a *Assembler) Jalr(rd, rs1 Reg, imm int64) { a.itype(opJalr, 0, rd, rs1, imm, "jalr") }

// Conditional branches.
func (a *Assembler) Beq(rs1, rs2 Reg, label string)  { a.branch(0, rs1, rs2, label) }
func (a *Assembler) Bne(rs1, rs2 Reg, label string)  { a.branch(1, rs1, rs2, label) }
func (a *Assembler) Blt(rs1, rs2 Reg, label string)  { a.branch(4, rs1, rs2, label) }
func (a *Assembler) Bge(rs1, rs2 Reg, label string)  { a.branch(5, rs1, rs2, label) }
func (a *Assembler) Bltu(rs1, rs2 Reg, label string) { a.branch(6, rs1, rs2, label) }
func (a *Assembler) Bgeu(rs1, rs2 Reg, label string) { a.branch(7, rs1, rs2, label) }
func (a *Assembler) Beqz(rs Reg, label string)       { a.Beq(rs, Zero, label) }
func (a *Assembler) Bnez(rs Reg, label string)       { a.Bne(rs, Zero, label) }

// Loads.
func (a *Assembler) Lb(rd, rs1 Reg, imm int64)  { a.itype(opLoad, 0, rd, rs1, imm, "lb") }
func (a *Assembler) Lh(rd, rs1 Reg, imm int64)  { a.itype(opLoad, 1, rd, rs1, imm, "lh") }
func (a *Assembler) Lw(rd, rs1 Reg, imm int64)  { a.itype(opLoad, 2, rd, rs1, imm, "lw") }
func (a *Assembler) Ld(rd, rs1 Reg, imm int64)  { a.itype(opLoad, 3, rd, rs1, imm, "ld") }
func (a *Assembler) Lbu(rd, rs1 Reg, imm int64) { a.itype(opLoad, 4, rd, rs1, imm, "lbu") }
func (a *Assembler) Lhu(rd, rs1 Reg, imm int64) { a.itype(opLoad, 5, rd, rs1, imm, "lhu") }
func (a *Assembler) Lwu(rd, rs1 Reg, imm int64) { a.itype(opLoad, 6, rd, rs1, imm, "lwu") }

// Stores: the value in rs2 is written to rs1+imm.
func (a *Assembler) Sb(rs2, rs1 Reg, imm int64) { a.store(0, rs1, rs2, imm) }
func (a *Assembler) Sh(rs2, rs1 Reg, imm int64) { a.store(1, rs1, rs2, imm) }
func (a *Assembler) Sw(rs2, rs1 Reg, imm int64) { a.store(2, rs1, rs2, imm) }
func (a *Assembler) Sd(rs2, rs1 Reg, imm int64) { a.store(3, rs1, rs2, imm) }

func (a *Assembler) store(funct3 uint32, rs1, rs2 Reg, imm int64) {
	a.checkImm12(imm, "store")
	a.Emit(encodeS(opStore, funct3, rs1, rs2, imm))
}

// Register-immediate arithmetic.
func (a *Assembler) Addi(rd, rs1 Reg, imm int64)  { a.itype(opOpImm, 0, rd, rs1, imm, "addi") }
func (a *Assembler) Slti(rd, rs1 Reg, imm int64)  { a.itype(opOpImm, 2, rd, rs1, imm, "slti") }
func (a *Assembler) Sltiu(rd, rs1 Reg, imm int64) { a.itype(opOpImm, 3, rd, rs1, imm, "sltiu") }
func (a *Assembler) Xori(rd, rs1 Reg, imm int64)  { a.itype(opOpImm, 4, rd, rs1, imm, "xori") }
func (a *Assembler) Ori(rd, rs1 Reg, imm int64)   { a.itype(opOpImm, 6, rd, rs1, imm, "ori") }
func (a *Assembler) Andi(rd, rs1 Reg, imm int64)  { a.itype(opOpImm, 7, rd, rs1, imm, "andi") }
func (a *Assembler) Addiw(rd, rs1 Reg, imm int64) { a.itype(opOpImm32, 0, rd, rs1, imm, "addiw") }

// Shifts by an immediate amount.
func (a *Assembler) Slli(rd, rs1 Reg, shamt uint32) {
	a.Emit(encodeI(opOpImm, 1, rd, rs1, int64(shamt&0x3f)))
}
func (a *Assembler) Srli(rd, rs1 Reg, shamt uint32) {
	a.Emit(encodeI(opOpImm, 5, rd, rs1, int64(shamt&0x3f)))
}
func (a *Assembler) Srai(rd, rs1 Reg, shamt uint32) {
	a.Emit(encodeI(opOpImm, 5, rd, rs1, int64(0x400|shamt&0x3f)))
}

// Register-register arithmetic.
func (a *Assembler) Add(rd, rs1, rs2 Reg)  { a.Emit(encodeR(opOp, 0, 0, rd, rs1, rs2)) }
func (a *Assembler) Sub(rd, rs1, rs2 Reg)  { a.Emit(encodeR(opOp, 0, funct7Alt, rd, rs1, rs2)) }
func (a *Assembler) Sll(rd, rs1, rs2 Reg)  { a.Emit(encodeR(opOp, 1, 0, rd, rs1, rs2)) }
func (a *Assembler) Slt(rd, rs1, rs2 Reg)  { a.Emit(encodeR(opOp, 2, 0, rd, rs1, rs2)) }
func (a *Assembler) Sltu(rd, rs1, rs2 Reg) { a.Emit(encodeR(opOp, 3, 0, rd, rs1, rs2)) }
func (a *Assembler) Xor(rd, rs1, rs2 Reg)  { a.Emit(encodeR(opOp, 4, 0, rd, rs1, rs2)) }
func (a *Assembler) Srl(rd, rs1, rs2 Reg)  { a.Emit(encodeR(opOp, 5, 0, rd, rs1, rs2)) }
func (a *Assembler) Sra(rd, rs1, rs2 Reg)  { a.Emit(encodeR(opOp, 5, funct7Alt, rd, rs1, rs2)) }
func (a *Assembler) Or(rd, rs1, rs2 Reg)   { a.Emit(encodeR(opOp, 6, 0, rd, rs1, rs2)) }
func (a *Assembler) And(rd, rs1, rs2 Reg)  { a.Emit(encodeR(opOp, 7, 0, rd, rs1, rs2)) }
func (a *Assembler) Addw(rd, rs1, rs2 Reg) { a.Emit(encodeR(opOp32, 0, 0, rd, rs1, rs2)) }
func (a *Assembler) Subw(rd, rs1, rs2 Reg) { a.Emit(encodeR(opOp32, 0, funct7Alt, rd, rs1, rs2)) }

// M extension.
func (a *Assembler) Mul(rd, rs1, rs2 Reg)  { a.Emit(encodeR(opOp, 0, funct7MulD, rd, rs1, rs2)) }
func (a *Assembler) Mulh(rd, rs1, rs2 Reg) { a.Emit(encodeR(opOp, 1, funct7MulD, rd, rs1, rs2)) }
func (a *Assembler) Div(rd, rs1, rs2 Reg)  { a.Emit(encodeR(opOp, 4, funct7MulD, rd, rs1, rs2)) }
func (a *Assembler) Divu(rd, rs1, rs2 Reg) { a.Emit(encodeR(opOp, 5, funct7MulD, rd, rs1, rs2)) }
func (a *Assembler) Rem(rd, rs1, rs2 Reg)  { a.Emit(encodeR(opOp, 6, funct7MulD, rd, rs1, rs2)) }
func (a *Assembler) Remu(rd, rs1, rs2 Reg) { a.Emit(encodeR(opOp, 7, funct7MulD, rd, rs1, rs2)) }
func (a *Assembler) Divw(rd, rs1, rs2 Reg) { a.Emit(encodeR(opOp32, 4, funct7MulD, rd, rs1, rs2)) }

// System instructions.
func (a *Assembler) Ecall()     { a.Emit(instEcall) }
func (a *Assembler) Ebreak()    { a.Emit(instEbreak) }
func (a *Assembler) Sret()      { a.Emit(instSret) }
func (a *Assembler) Wfi()       { a.Emit(instWfi) }
func (a *Assembler) SfenceVMA() { a.Emit(0x09<<25 | opSystem) }
func (a *Assembler) Fence()     { a.Emit(0x0ff0000f) }

// Csrrw atomically swaps rs1 into csr, old value into rd.
func (a *Assembler) Csrrw(rd Reg, csr uint32, rs1 Reg) {
	a.Emit(csr<<20 | uint32(rs1)<<15 | 1<<12 | uint32(rd)<<7 | opSystem)
}

// Csrrs sets the bits of rs1 in csr, old value into rd.
func (a *Assembler) Csrrs(rd Reg, csr uint32, rs1 Reg) {
	a.Emit(csr<<20 | uint32(rs1)<<15 | 2<<12 | uint32(rd)<<7 | opSystem)
}

// Csrrc clears the bits of rs1 in csr, old value into rd.
func (a *Assembler) Csrrc(rd Reg, csr uint32, rs1 Reg) {
	a.Emit(csr<<20 | uint32(rs1)<<15 | 3<<12 | uint32(rd)<<7 | opSystem)
}

// Csrr reads csr into rd.
func (a *Assembler) Csrr(rd Reg, csr uint32) { a.Csrrs(rd, csr, Zero) }

// Csrw writes rs into csr.
func (a *Assembler) Csrw(csr uint32, rs Reg) { a.Csrrw(Zero, csr, rs) }

// Pseudo-instructions.
func (a *Assembler) Nop()           { a.Addi(Zero, Zero, 0) }
func (a *Assembler) Mv(rd, rs Reg)  { a.Addi(rd, rs, 0) }
func (a *Assembler) Neg(rd, rs Reg) { a.Sub(rd, Zero, rs) }
func (a *Assembler) J(label string) { a.Jal(Zero, label) }
func (a *Assembler) Call(label string) {
	a.Jal(RA, label)
}
func (a *Assembler) Jr(rs Reg) { a.Jalr(Zero, rs, 0) }
func (a *Assembler) Ret()      { a.Jalr(Zero, RA, 0) }

// La loads the address of label into rd using a pc-relative pair.
func (a *Assembler) La(rd Reg, label string) {
	a.fixups = append(a.fixups, fixup{at: len(a.buf), label: label, kind: fixPCRel})
	a.Auipc(rd, 0)
	a.Emit(encodeI(opOpImm, 0, rd, rd, 0))
}

// Li loads an arbitrary 64-bit constant into rd.
func (a *Assembler) Li(rd Reg, imm int64) {
	if imm >= -2048 && imm < 2048 {
		a.Addi(rd, Zero, imm)
		return
	}

	if imm == int64(int32(imm)) {
		hi := (imm + 0x800) >> 12
		lo := imm - hi<<12
		a.Lui(rd, hi)
		if lo != 0 {
			a.Addiw(rd, rd, lo)
		}
		return
	}

	lo := imm << 52 >> 52
	hi := (imm - lo) >> 12
	shift := uint32(12)
	for hi&1 == 0 && shift < 63 && !(hi >= -1<<31 && hi < 1<<31) {
		hi >>= 1
		shift++
	}
	a.Li(rd, hi)
	a.Slli(rd, rd, shift)
	if lo != 0 {
		a.Addi(rd, rd, lo)
	}
}
