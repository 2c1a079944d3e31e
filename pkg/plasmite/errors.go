package plasmite

import "fmt"

// Kind classifies every failure the engine can report. Exactly these eight
// values exist; each has a stable exit code for CLI wrappers (1..8, in the
// order declared here).
type Kind int

const (
	KindInternal Kind = iota + 1
	KindUsage
	KindNotFound
	KindAlreadyExists
	KindBusy
	KindPermission
	KindCorrupt
	KindIo
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindUsage:
		return "usage"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindBusy:
		return "busy"
	case KindPermission:
		return "permission"
	case KindCorrupt:
		return "corrupt"
	case KindIo:
		return "io"
	default:
		return "unknown"
	}
}

// ExitCode returns the stable exit code for a kind (spec §6.3).
func (k Kind) ExitCode() int {
	return int(k)
}

// Classification sentinels. Implementations wrap these with additional
// context via [Error]; callers MUST classify errors using errors.Is against
// these values, never by string comparison.
var (
	ErrInternal      = sentinel(KindInternal)
	ErrUsage         = sentinel(KindUsage)
	ErrNotFound      = sentinel(KindNotFound)
	ErrAlreadyExists = sentinel(KindAlreadyExists)
	ErrBusy          = sentinel(KindBusy)
	ErrPermission    = sentinel(KindPermission)
	ErrCorrupt       = sentinel(KindCorrupt)
	ErrIo            = sentinel(KindIo)
)

func sentinel(k Kind) error {
	return &Error{Kind: k, Msg: k.String() + " (sentinel)"}
}

var sentinelByKind = map[Kind]error{
	KindInternal:      ErrInternal,
	KindUsage:         ErrUsage,
	KindNotFound:      ErrNotFound,
	KindAlreadyExists: ErrAlreadyExists,
	KindBusy:          ErrBusy,
	KindPermission:    ErrPermission,
	KindCorrupt:       ErrCorrupt,
	KindIo:            ErrIo,
}

// Error is the engine's error type. Every failure returned across the
// package boundary either is, or wraps, an *Error. Optional context fields
// are zero-valued when not applicable.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "open", "append"
	Path string // pool file path, if known
	Msg  string // human-readable detail

	HasSeq bool
	Seq    uint64

	HasOffset bool
	Offset    int64

	Err error // wrapped cause, if any
}

func (e *Error) Error() string {
	s := "plasmite"
	if e.Op != "" {
		s += ": " + e.Op
	}
	if e.Path != "" {
		s += fmt.Sprintf(" %q", e.Path)
	}
	if e.HasSeq {
		s += fmt.Sprintf(" seq=%d", e.Seq)
	}
	if e.HasOffset {
		s += fmt.Sprintf(" offset=%d", e.Offset)
	}
	s += ": " + e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind, so
// errors.Is(err, ErrCorrupt) works regardless of how much context has been
// wrapped onto the concrete error.
func (e *Error) Is(target error) bool {
	return target == sentinelByKind[e.Kind]
}

// newErr builds a new *Error for kind k in operation op with a formatted
// message.
func newErr(k Kind, op, format string, args ...any) *Error {
	return &Error{Kind: k, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// wrapErr wraps cause as kind k in operation op.
func wrapErr(k Kind, op string, cause error) *Error {
	return &Error{Kind: k, Op: op, Err: cause}
}

func (e *Error) withPath(path string) *Error {
	e.Path = path
	return e
}

func (e *Error) withSeq(seq uint64) *Error {
	e.HasSeq = true
	e.Seq = seq
	return e
}

func (e *Error) withOffset(off int64) *Error {
	e.HasOffset = true
	e.Offset = off
	return e
}
