package service

import "errors"

var (
	ErrDirectoryUnreadable = errors.New("data directory unreadable")
	ErrNoUsableSegments    = errors.New("no usable segments")
	ErrManifestNotFound    = errors.New("source manifest not found")
	ErrManifestParse       = errors.New("source manifest malformed")
	ErrStreamNotFound      = errors.New("stream not found")
	ErrNoData              = errors.New("stream has no segments")

	ErrFutureSegment   = errors.New("requested segment is from the future")
	ErrSegmentNotFound = errors.New("segment unavailable")

	ErrUnknownExtension = errors.New("unknown file type requested")
	ErrBadRequest       = errors.New("bad request")
)
