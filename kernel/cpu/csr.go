package cpu

// CSR numbers implemented by the hart.
const (
	CSRSstatus  = 0x100
	CSRSie      = 0x104
	CSRStvec    = 0x105
	CSRSscratch = 0x140
	CSRSepc     = 0x141
	CSRScause   = 0x142
	CSRStval    = 0x143
	CSRSip      = 0x144
	CSRSatp     = 0x180
	CSRCycle    = 0xc00
	CSRTime     = 0xc01
	CSRInstret  = 0xc02
)

// sstatus bits.
const (
	SstatusSIE  = 1 << 1
	SstatusSPIE = 1 << 5
	SstatusSPP  = 1 << 8
	SstatusSUM  = 1 << 18

	sstatusMask = SstatusSIE | SstatusSPIE | SstatusSPP | SstatusSUM
)

// sie / sip bits.
const (
	SieSSIE = 1 << 1
	SieSTIE = 1 << 5
	SieSEIE = 1 << 9

	SipSTIP = 1 << 5

	sieMask = SieSSIE | SieSTIE | SieSEIE
)

// satp modes.
const (
	SatpModeBare = 0
	SatpModeSv39 = 8
)

// csrRead returns the value of a CSR, or false if it is not implemented.
// Privilege checks are done by the caller.
func (h *Hart) csrRead(csr uint32) (uint64, bool) {
	switch csr {
	case CSRSstatus:
		return h.sstatus, true
	case CSRSie:
		return h.sie, true
	case CSRStvec:
		return h.stvec, true
	case CSRSscratch:
		return h.sscratch, true
	case CSRSepc:
		return h.sepc, true
	case CSRScause:
		return h.scause, true
	case CSRStval:
		return h.stval, true
	case CSRSip:
		if h.timerPending() {
			return SipSTIP, true
		}
		return 0, true
	case CSRSatp:
		return h.satp, true
	case CSRCycle, CSRTime:
		return h.time, true
	case CSRInstret:
		return h.instret, true
	}
	return 0, false
}

// csrWrite updates a CSR applying its WARL rules.
func (h *Hart) csrWrite(csr uint32, v uint64) bool {
	switch csr {
	case CSRSstatus:
		h.sstatus = v & sstatusMask
	case CSRSie:
		h.sie = v & sieMask
	case CSRStvec:
		h.stvec = v &^ 2
	case CSRSscratch:
		h.sscratch = v
	case CSRSepc:
		h.sepc = v &^ 3
	case CSRScause:
		h.scause = v
	case CSRStval:
		h.stval = v
	case CSRSip:
		// STIP is driven by the timer comparator.
	case CSRSatp:
		if mode := v >> 60; mode == SatpModeBare || mode == SatpModeSv39 {
			h.satp = v
		}
	default:
		return false
	}
	return true
}

// ReadCSR returns a CSR value as seen from S-mode.
func (h *Hart) ReadCSR(csr uint32) uint64 {
	v, _ := h.csrRead(csr)
	return v
}

// WriteCSR writes a CSR from S-mode. Unknown or read-only CSRs are ignored.
func (h *Hart) WriteCSR(csr uint32, v uint64) {
	h.csrWrite(csr, v)
}
