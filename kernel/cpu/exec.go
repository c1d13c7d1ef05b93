package cpu

import "math/bits"

// Major opcodes.
const (
	opLoad     = 0x03
	opMiscMem  = 0x0f
	opOpImm    = 0x13
	opAuipc    = 0x17
	opOpImm32  = 0x1b
	opStore    = 0x23
	opOp       = 0x33
	opLui      = 0x37
	opOp32     = 0x3b
	opBranch   = 0x63
	opJalr     = 0x67
	opJal      = 0x6f
	opSystem   = 0x73
	funct7Alt  = 0x20
	funct7MulD = 0x01
)

// Fixed SYSTEM encodings.
const (
	instEcall  = 0x00000073
	instEbreak = 0x00100073
	instSret   = 0x10200073
	instWfi    = 0x10500073
)

func immI(inst uint32) int64 { return int64(int32(inst)) >> 20 }

func immS(inst uint32) int64 {
	return int64(int32(inst))>>25<<5 | int64((inst>>7)&0x1f)
}

func immB(inst uint32) int64 {
	return int64(int32(inst))>>31<<12 |
		int64((inst>>7)&1)<<11 |
		int64((inst>>25)&0x3f)<<5 |
		int64((inst>>8)&0xf)<<1
}

func immU(inst uint32) int64 { return int64(int32(inst & 0xfffff000)) }

func immJ(inst uint32) int64 {
	return int64(int32(inst))>>31<<20 |
		int64((inst>>12)&0xff)<<12 |
		int64((inst>>20)&1)<<11 |
		int64((inst>>21)&0x3ff)<<1
}

func sext32(v uint64) uint64 { return uint64(int64(int32(v))) }

func (h *Hart) illegal(inst uint32) bool {
	h.trap(IllegalInstruction, uint64(inst))
	return false
}

// jumpTo validates a control transfer target.
func (h *Hart) jumpTo(target uint64, next *uint64) bool {
	if target&3 != 0 {
		h.trap(InstructionMisaligned, target)
		return false
	}
	*next = target
	return true
}

// execute runs one instruction and returns false if it trapped.
func (h *Hart) execute(inst uint32) bool {
	var (
		opcode = inst & 0x7f
		rd     = Reg((inst >> 7) & 0x1f)
		funct3 = (inst >> 12) & 7
		rs1    = Reg((inst >> 15) & 0x1f)
		rs2    = Reg((inst >> 20) & 0x1f)
		funct7 = inst >> 25
		next   = h.pc + 4
	)

	if inst&3 != 3 {
		return h.illegal(inst)
	}

	switch opcode {
	case opLui:
		h.SetReg(rd, uint64(immU(inst)))
	case opAuipc:
		h.SetReg(rd, h.pc+uint64(immU(inst)))
	case opJal:
		if !h.jumpTo(h.pc+uint64(immJ(inst)), &next) {
			return false
		}
		h.SetReg(rd, h.pc+4)
	case opJalr:
		if funct3 != 0 {
			return h.illegal(inst)
		}
		if !h.jumpTo((h.Reg(rs1)+uint64(immI(inst)))&^1, &next) {
			return false
		}
		h.SetReg(rd, h.pc+4)
	case opBranch:
		a, b := h.Reg(rs1), h.Reg(rs2)
		var taken bool
		switch funct3 {
		case 0:
			taken = a == b
		case 1:
			taken = a != b
		case 4:
			taken = int64(a) < int64(b)
		case 5:
			taken = int64(a) >= int64(b)
		case 6:
			taken = a < b
		case 7:
			taken = a >= b
		default:
			return h.illegal(inst)
		}
		if taken && !h.jumpTo(h.pc+uint64(immB(inst)), &next) {
			return false
		}
	case opLoad:
		if !h.execLoad(inst, rd, funct3, h.Reg(rs1)+uint64(immI(inst))) {
			return false
		}
	case opStore:
		if funct3 > 3 {
			return h.illegal(inst)
		}
		if !h.store(h.Reg(rs1)+uint64(immS(inst)), 1<<funct3, h.Reg(rs2)) {
			return false
		}
	case opOpImm:
		v, ok := aluImm(funct3, inst, h.Reg(rs1))
		if !ok {
			return h.illegal(inst)
		}
		h.SetReg(rd, v)
	case opOpImm32:
		v, ok := aluImm32(funct3, inst, h.Reg(rs1))
		if !ok {
			return h.illegal(inst)
		}
		h.SetReg(rd, v)
	case opOp:
		v, ok := alu(funct3, funct7, h.Reg(rs1), h.Reg(rs2))
		if !ok {
			return h.illegal(inst)
		}
		h.SetReg(rd, v)
	case opOp32:
		v, ok := alu32(funct3, funct7, h.Reg(rs1), h.Reg(rs2))
		if !ok {
			return h.illegal(inst)
		}
		h.SetReg(rd, v)
	case opMiscMem:
		// fence and fence.i: a single hart without caches needs no ordering.
	case opSystem:
		return h.execSystem(inst, rd, funct3, rs1)
	default:
		return h.illegal(inst)
	}

	h.pc = next
	return true
}

func (h *Hart) execLoad(inst uint32, rd Reg, funct3 uint32, addr uint64) bool {
	var (
		size   int
		signed bool
	)
	switch funct3 {
	case 0, 1, 2:
		size, signed = 1<<funct3, true
	case 3:
		size = 8
	case 4, 5, 6:
		size = 1 << (funct3 - 4)
	default:
		return h.illegal(inst)
	}

	v, ok := h.load(addr, size)
	if !ok {
		return false
	}
	if signed {
		shift := 64 - 8*uint(size)
		v = uint64(int64(v<<shift) >> shift)
	}
	h.SetReg(rd, v)
	return true
}

func aluImm(funct3, inst uint32, a uint64) (uint64, bool) {
	imm := uint64(immI(inst))
	shamt := (inst >> 20) & 0x3f
	funct6 := inst >> 26

	switch funct3 {
	case 0:
		return a + imm, true
	case 1:
		return a << shamt, funct6 == 0
	case 2:
		return boolToReg(int64(a) < int64(imm)), true
	case 3:
		return boolToReg(a < imm), true
	case 4:
		return a ^ imm, true
	case 5:
		switch funct6 {
		case 0:
			return a >> shamt, true
		case funct7Alt >> 1:
			return uint64(int64(a) >> shamt), true
		}
	case 6:
		return a | imm, true
	case 7:
		return a & imm, true
	}
	return 0, false
}

func aluImm32(funct3, inst uint32, a uint64) (uint64, bool) {
	shamt := (inst >> 20) & 0x1f
	funct7 := inst >> 25

	switch funct3 {
	case 0:
		return sext32(a + uint64(immI(inst))), true
	case 1:
		return sext32(uint64(uint32(a) << shamt)), funct7 == 0
	case 5:
		switch funct7 {
		case 0:
			return sext32(uint64(uint32(a) >> shamt)), true
		case funct7Alt:
			return uint64(int64(int32(a) >> shamt)), true
		}
	}
	return 0, false
}

func alu(funct3, funct7 uint32, a, b uint64) (uint64, bool) {
	if funct7 == funct7MulD {
		return mulDiv(funct3, a, b), true
	}

	shamt := b & 0x3f
	switch {
	case funct3 == 0 && funct7 == 0:
		return a + b, true
	case funct3 == 0 && funct7 == funct7Alt:
		return a - b, true
	case funct3 == 5 && funct7 == funct7Alt:
		return uint64(int64(a) >> shamt), true
	case funct7 != 0:
		return 0, false
	}

	switch funct3 {
	case 1:
		return a << shamt, true
	case 2:
		return boolToReg(int64(a) < int64(b)), true
	case 3:
		return boolToReg(a < b), true
	case 4:
		return a ^ b, true
	case 5:
		return a >> shamt, true
	case 6:
		return a | b, true
	default:
		return a & b, true
	}
}

func alu32(funct3, funct7 uint32, a, b uint64) (uint64, bool) {
	if funct7 == funct7MulD {
		return mulDiv32(funct3, a, b)
	}

	shamt := b & 0x1f
	switch {
	case funct3 == 0 && funct7 == 0:
		return sext32(a + b), true
	case funct3 == 0 && funct7 == funct7Alt:
		return sext32(a - b), true
	case funct3 == 1 && funct7 == 0:
		return sext32(uint64(uint32(a) << shamt)), true
	case funct3 == 5 && funct7 == 0:
		return sext32(uint64(uint32(a) >> shamt)), true
	case funct3 == 5 && funct7 == funct7Alt:
		return uint64(int64(int32(a) >> shamt)), true
	}
	return 0, false
}

func mulDiv(funct3 uint32, a, b uint64) uint64 {
	switch funct3 {
	case 0:
		return a * b
	case 1:
		hi, _ := bits.Mul64(a, b)
		if int64(a) < 0 {
			hi -= b
		}
		if int64(b) < 0 {
			hi -= a
		}
		return hi
	case 2:
		hi, _ := bits.Mul64(a, b)
		if int64(a) < 0 {
			hi -= b
		}
		return hi
	case 3:
		hi, _ := bits.Mul64(a, b)
		return hi
	case 4:
		switch {
		case b == 0:
			return ^uint64(0)
		case int64(a) == -1<<63 && int64(b) == -1:
			return a
		}
		return uint64(int64(a) / int64(b))
	case 5:
		if b == 0 {
			return ^uint64(0)
		}
		return a / b
	case 6:
		switch {
		case b == 0:
			return a
		case int64(a) == -1<<63 && int64(b) == -1:
			return 0
		}
		return uint64(int64(a) % int64(b))
	default:
		if b == 0 {
			return a
		}
		return a % b
	}
}

func mulDiv32(funct3 uint32, a, b uint64) (uint64, bool) {
	sa, sb := int32(a), int32(b)
	ua, ub := uint32(a), uint32(b)

	switch funct3 {
	case 0:
		return sext32(uint64(ua * ub)), true
	case 4:
		switch {
		case sb == 0:
			return ^uint64(0), true
		case sa == -1<<31 && sb == -1:
			return uint64(int64(sa)), true
		}
		return uint64(int64(sa / sb)), true
	case 5:
		if ub == 0 {
			return ^uint64(0), true
		}
		return sext32(uint64(ua / ub)), true
	case 6:
		switch {
		case sb == 0:
			return uint64(int64(sa)), true
		case sa == -1<<31 && sb == -1:
			return 0, true
		}
		return uint64(int64(sa % sb)), true
	case 7:
		if ub == 0 {
			return sext32(uint64(ua)), true
		}
		return sext32(uint64(ua % ub)), true
	}
	return 0, false
}

func boolToReg(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (h *Hart) execSystem(inst uint32, rd Reg, funct3 uint32, rs1 Reg) bool {
	if funct3 == 0 {
		switch {
		case inst == instEcall:
			if h.mode == ModeUser {
				h.trap(UserEnvCall, 0)
			} else {
				h.trap(SupervisorEnvCall, 0)
			}
			return false
		case inst == instEbreak:
			h.trap(Breakpoint, h.pc)
			return false
		case h.mode == ModeUser:
			return h.illegal(inst)
		case inst == instSret:
			h.sret()
			return true
		case inst == instWfi:
		case inst>>25 == 0x09 && rd == Zero:
			// sfence.vma: translations are never cached.
		default:
			return h.illegal(inst)
		}
		h.pc += 4
		return true
	}

	if funct3 == 4 {
		return h.illegal(inst)
	}

	csr := inst >> 20
	if Mode(csr>>8&3) > h.mode {
		return h.illegal(inst)
	}

	src := uint64(rs1)
	if funct3 < 4 {
		src = h.Reg(rs1)
	}
	writes := funct3&3 == 1 || rs1 != Zero

	old, ok := h.csrRead(csr)
	if !ok {
		return h.illegal(inst)
	}

	if writes {
		if csr>>10 == 3 {
			return h.illegal(inst)
		}

		v := src
		switch funct3 & 3 {
		case 2:
			v = old | src
		case 3:
			v = old &^ src
		}
		h.csrWrite(csr, v)
	}

	h.SetReg(rd, old)
	h.pc += 4
	return true
}
