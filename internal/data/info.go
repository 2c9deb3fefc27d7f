package data

import "strconv"

// StreamID identifies a stream for the lifetime of a broker. Zero is never
// assigned and means "not found".
type StreamID uint64

// String returns the decimal id.
func (id StreamID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Flags describe how a stream may be used.
type Flags int32

const (
	// FlagNone marks a stream without declared capabilities. As a list
	// filter it matches every stream.
	FlagNone Flags = 0
	// FlagRead marks a stream as readable by consumers.
	FlagRead Flags = 1 << 0
	// FlagWrite marks a stream as writable by consumers.
	FlagWrite Flags = 1 << 1
	// FlagReadWrite combines FlagRead and FlagWrite.
	FlagReadWrite = FlagRead | FlagWrite
)

// Has reports whether all bits of other are set.
func (f Flags) Has(other Flags) bool {
	return f&other == other
}

// Matches reports whether f passes a list filter. FlagNone passes
// everything; otherwise any shared bit is enough.
func (f Flags) Matches(filter Flags) bool {
	return filter == FlagNone || f&filter != 0
}

// String returns a short description of the flags.
func (f Flags) String() string {
	switch f {
	case FlagNone:
		return "none"
	case FlagRead:
		return "read"
	case FlagWrite:
		return "write"
	case FlagReadWrite:
		return "readwrite"
	default:
		return "flags(" + strconv.Itoa(int(f)) + ")"
	}
}

// Info is the identity of a stream.
type Info struct {
	ID    StreamID
	Group string
	Name  string
	Flags Flags
}

// Valid reports whether the info refers to a real stream.
func (i Info) Valid() bool {
	return i.ID != 0
}

// String returns group/name#id.
func (i Info) String() string {
	return i.Group + "/" + i.Name + "#" + i.ID.String()
}
