package task

import "encoding/binary"

// SignalFlags is a set of signals; signal n is bit n.
type SignalFlags uint32

// Signal numbers.
const (
	SIGDEF = iota
	SIGHUP
	SIGINT
	SIGQUIT
	SIGILL
	SIGTRAP
	SIGABRT
	SIGBUS
	SIGFPE
	SIGKILL
	SIGUSR1
	SIGSEGV
	SIGUSR2
	SIGPIPE
	SIGALRM
	SIGTERM
	SIGSTKFLT
	SIGCHLD
	SIGCONT
	SIGSTOP
	SIGTSTP
	SIGTTIN
	SIGTTOU
	SIGURG
	SIGXCPU
	SIGXFSZ
	SIGVTALRM
	SIGPROF
	SIGWINCH
	SIGIO
	SIGPWR
	SIGSYS

	// MaxSig is the highest valid signal number.
	MaxSig = SIGSYS
)

// SignalActionSize is the size of a SignalAction in user memory: the
// handler address at offset 0 and the mask at offset 8.
const SignalActionSize = 16

// Flag returns the set holding only signal signum.
func Flag(signum int) SignalFlags { return SignalFlags(1) << uint(signum) }

// Contains returns true if every signal in other is in s.
func (s SignalFlags) Contains(other SignalFlags) bool { return s&other == other }

// CheckError maps the fatal signals in s to the exit code and message of
// the process they terminate, in a fixed order of precedence.
func (s SignalFlags) CheckError() (int32, string, bool) {
	switch {
	case s.Contains(Flag(SIGINT)):
		return -2, "Killed, SIGINT=2", true
	case s.Contains(Flag(SIGILL)):
		return -4, "Illegal Instruction, SIGILL=4", true
	case s.Contains(Flag(SIGABRT)):
		return -6, "Aborted, SIGABRT=6", true
	case s.Contains(Flag(SIGFPE)):
		return -8, "Erroneous Arithmetic Operation, SIGFPE=8", true
	case s.Contains(Flag(SIGKILL)):
		return -9, "Killed, SIGKILL=9", true
	case s.Contains(Flag(SIGSEGV)):
		return -11, "Segmentation Fault, SIGSEGV=11", true
	}
	return 0, "", false
}

// SignalAction is the user-installed disposition of a signal. A zero
// handler selects the default action.
type SignalAction struct {
	Handler uint64
	Mask    SignalFlags
}

// DecodeSignalAction reads an action in its user memory layout.
func DecodeSignalAction(raw []byte) SignalAction {
	return SignalAction{
		Handler: binary.LittleEndian.Uint64(raw[0:8]),
		Mask:    SignalFlags(binary.LittleEndian.Uint32(raw[8:12])),
	}
}

// Encode returns the action in its user memory layout.
func (a SignalAction) Encode() []byte {
	raw := make([]byte, SignalActionSize)
	binary.LittleEndian.PutUint64(raw[0:8], a.Handler)
	binary.LittleEndian.PutUint32(raw[8:12], uint32(a.Mask))
	return raw
}

// DefaultSignalAction is installed for every signal of a new process.
var DefaultSignalAction = SignalAction{Mask: Flag(SIGQUIT) | Flag(SIGTRAP)}

// SignalActions is the per-process table indexed by signal number.
type SignalActions [MaxSig + 1]SignalAction

func defaultSignalActions() SignalActions {
	var t SignalActions
	for i := range t {
		t[i] = DefaultSignalAction
	}
	return t
}

func isKernelSignal(signum int) bool {
	switch signum {
	case SIGKILL, SIGSTOP, SIGCONT, SIGDEF:
		return true
	}
	return false
}
