package kernel

// Error describes a kernel error. Every kernel error is declared as a
// package-level *Error so callers compare against the exported value.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// base is the declared error this one was derived from by WithDetail.
	base *Error
}

// Error implements the error interface. The module tag is included so host
// logs read the same as the kernel's "[module] message" banners.
func (e *Error) Error() string {
	if e.Module == "" {
		return e.Message
	}
	return e.Module + ": " + e.Message
}

// WithDetail returns a copy of e whose message is suffixed with detail, such
// as the offending label or application name. The copy still matches e with
// errors.Is.
func (e *Error) WithDetail(detail string) *Error {
	return &Error{Module: e.Module, Message: e.Message + ": " + detail, base: e.root()}
}

// Is reports whether target is e or the declared error e was derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && (t == e || t == e.root())
}

func (e *Error) root() *Error {
	if e.base != nil {
		return e.base
	}
	return e
}
