// Package elferr defines the closed error taxonomy every core component
// returns. It plays the same role a compiler's CompilerError/ErrorLevel/
// ErrorCategory machinery plays, re-keyed to the set of failures a load can
// produce instead of a set of compile diagnostics.
package elferr

import "fmt"

// Kind is the closed set of diagnoses a load can produce.
type Kind int

const (
	_ Kind = iota
	Io
	ShortRead
	BadMagic
	BadClass
	BadEndianness
	BadType
	BadVersion
	BadMachine
	BadPhdrCount
	NoLoadable
	ReservationTooSmall
	MapFailed
	PhdrNotLocatable
	NoDynamic
	BadDynamicLink
	BadStrtabType
	SeccompInstallFailed
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case ShortRead:
		return "short read"
	case BadMagic:
		return "bad magic"
	case BadClass:
		return "bad class"
	case BadEndianness:
		return "bad endianness"
	case BadType:
		return "bad type"
	case BadVersion:
		return "bad version"
	case BadMachine:
		return "bad machine"
	case BadPhdrCount:
		return "bad phdr count"
	case NoLoadable:
		return "no loadable segments"
	case ReservationTooSmall:
		return "reservation too small"
	case MapFailed:
		return "map failed"
	case PhdrNotLocatable:
		return "phdr not locatable"
	case NoDynamic:
		return "no dynamic section"
	case BadDynamicLink:
		return "bad dynamic link"
	case BadStrtabType:
		return "bad strtab type"
	case SeccompInstallFailed:
		return "seccomp install failed"
	default:
		return "unknown"
	}
}

// LoadError is the single error type every component in this module
// returns. Its Error() string is a one-line "<name>" <reason> diagnostic;
// the structured fields let collaborators branch on Kind without parsing
// text.
type LoadError struct {
	Name string // the Image's human-readable name
	Kind Kind

	// Detail fields, populated selectively depending on Kind. Zero values
	// mean "not applicable to this Kind".
	Op             string // for Io: which syscall failed
	Errno          error  // for Io/MapFailed/SeccompInstallFailed: the underlying errno
	Expected, Got  uint64 // for ShortRead (bytes), BadClass/BadMachine (values), BadPhdrCount (count)
	SegmentIndex   int    // for MapFailed
	Have, Need     uint64 // for ReservationTooSmall
	ShnumZero      bool   // for NoDynamic: e_shnum was 0 rather than SHT_DYNAMIC absent/malformed
}

func (e *LoadError) Error() string {
	reason := e.reason()
	if e.Name == "" {
		return reason
	}
	return fmt.Sprintf("%q %s", e.Name, reason)
}

func (e *LoadError) Unwrap() error { return e.Errno }

func (e *LoadError) reason() string {
	switch e.Kind {
	case Io:
		return fmt.Sprintf("%s: %v", e.Op, e.Errno)
	case ShortRead:
		return fmt.Sprintf("short read: expected %d bytes, got %d", e.Expected, e.Got)
	case BadClass:
		return fmt.Sprintf("%d-bit instead of %d-bit", e.Got, e.Expected)
	case BadMachine:
		return fmt.Sprintf("machine 0x%x does not match host 0x%x", e.Got, e.Expected)
	case BadPhdrCount:
		return fmt.Sprintf("phdr count %d out of range", e.Got)
	case MapFailed:
		return fmt.Sprintf("segment %d: %v", e.SegmentIndex, e.Errno)
	case ReservationTooSmall:
		return fmt.Sprintf("need %d bytes, have %d", e.Need, e.Have)
	case SeccompInstallFailed:
		return fmt.Sprintf("install: %v", e.Errno)
	default:
		return e.Kind.String()
	}
}

// New builds a LoadError of the given Kind for the named image, with no
// detail fields populated. Callers needing detail build a LoadError
// literal with the relevant fields set.
func New(name string, kind Kind) *LoadError {
	return &LoadError{Name: name, Kind: kind}
}

// Wrap builds an Io-kind LoadError describing a failed syscall.
func Wrap(name, op string, err error) *LoadError {
	return &LoadError{Name: name, Kind: Io, Op: op, Errno: err}
}

// Is implements errors.Is support so callers can write
// errors.Is(err, elferr.New("", elferr.NoDynamic)) style checks against a
// sentinel built with Kind alone (Name and detail fields are ignored for
// comparison).
func (e *LoadError) Is(target error) bool {
	other, ok := target.(*LoadError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// IsDynamicUnavailable reports whether err is the specific, non-fatal
// "section headers absent" case (e_shnum == 0), which this module treats
// as "dynamic section unavailable" rather than a hard failure. It is still
// surfaced through the same NoDynamic Kind as any other dynamic-section
// failure; this predicate exists purely so a caller that only needs
// segment mapping (and never calls ReadDynamic) can distinguish "this
// object simply has no section headers" from a genuinely malformed
// SHT_DYNAMIC/SHT_STRTAB pairing, without the core changing the Kind it
// returns.
func IsDynamicUnavailable(err error) bool {
	le, ok := err.(*LoadError)
	return ok && le.Kind == NoDynamic && le.ShnumZero
}
