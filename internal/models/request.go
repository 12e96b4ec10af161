package models

// RequestKind tells what kind of artifact
// a player asks for.
type RequestKind int

const (
	KindManifest RequestKind = iota
	KindInit
	KindSegment
)

func (k RequestKind) String() string {
	switch k {
	case KindManifest:
		return "manifest"
	case KindInit:
		return "init"
	case KindSegment:
		return "segment"
	}
	return "unknown"
}

// Request is a parsed request path.
type Request struct {
	Kind   RequestKind
	Stream string
	// File is the requested file name as is.
	File string
	Ext  string
	// Number is set for KindSegment only.
	Number int64
}
