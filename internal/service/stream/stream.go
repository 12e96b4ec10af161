package stream

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GintGld/livedash/internal/lib/logger/sl"
	"github.com/GintGld/livedash/internal/models"
	"github.com/GintGld/livedash/internal/service"
	manSrv "github.com/GintGld/livedash/internal/service/manifest"
)

// Stream is one live presentation built
// over the segments of the data directory.
type Stream struct {
	log          *slog.Logger
	name         string
	manifestPath string
	scanner      Scanner
	rewriter     Rewriter
	now          func() time.Time

	// guards everything below, index and manifest
	// are always replaced together
	mutex       sync.Mutex
	index       *models.SegmentIndex
	source      *manSrv.Source
	sourceMtime time.Time
	manifest    []byte
}

type Scanner interface {
	Scan(name string) (*models.SegmentIndex, error)
}

type Rewriter interface {
	Parse(data []byte) (*manSrv.Source, error)
	Render(src *manSrv.Source, name string, startTime, now time.Time) ([]byte, error)
}

// New returns new uninitialized Stream.
// Call Refresh to load it.
func New(
	log *slog.Logger,
	name string,
	dataDir string,
	scanner Scanner,
	rewriter Rewriter,
) *Stream {
	return &Stream{
		log:          log,
		name:         name,
		manifestPath: filepath.Join(dataDir, name+".mpd"),
		scanner:      scanner,
		rewriter:     rewriter,
		now:          time.Now,
	}
}

// WithClock replaces time source used for publishTime.
func (s *Stream) WithClock(now func() time.Time) *Stream {
	s.now = now
	return s
}

// Refresh rescans segments and rebuilds manifest
// if anything changed. On failure the last good
// state is kept. Returns true if state changed.
//
// Source manifest is parsed only when its mtime changes.
func (s *Stream) Refresh() (bool, error) {
	const op = "Stream.Refresh"

	log := s.log.With(
		slog.String("op", op),
		slog.String("stream", s.name),
	)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	scanned, err := s.scanner.Scan(s.name)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	index := s.index
	if scanned != nil && !scanned.Same(s.index) {
		index = scanned
	}
	if index == nil {
		log.Debug("no usable segments yet")
		return false, fmt.Errorf("%s: %w", op, service.ErrNoUsableSegments)
	}

	source, sourceMtime, srcErr := s.loadSource()
	if srcErr != nil {
		srcErr = fmt.Errorf("%s: %w", op, srcErr)
	}
	if source == nil {
		return false, srcErr
	}

	if index == s.index && source == s.source {
		return false, srcErr
	}

	body, err := s.rewriter.Render(source, s.name, index.StartTime, s.now())
	if err != nil {
		log.Error("failed to render manifest", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	s.index = index
	s.source = source
	s.sourceMtime = sourceMtime
	s.manifest = body

	current, _ := index.CurrentNumber()
	log.Info(
		"stream refreshed",
		slog.String("startTime", index.StartTime.UTC().Format(models.TimeFormat)),
		slog.Float64("age", index.Age.Seconds()),
		slog.Int64("currentNumber", current),
	)

	return true, srcErr
}

// loadSource returns parsed source manifest.
// Cached source is returned if the file was not
// modified or could not be loaded.
func (s *Stream) loadSource() (*manSrv.Source, time.Time, error) {
	const op = "Stream.loadSource"

	log := s.log.With(
		slog.String("op", op),
		slog.String("stream", s.name),
	)

	info, err := os.Stat(s.manifestPath)
	if err != nil {
		log.Warn("source manifest does not exist", sl.Err(err))
		return s.source, s.sourceMtime, fmt.Errorf("%s: %w: %w", op, service.ErrManifestNotFound, err)
	}

	mtime := info.ModTime()
	if s.source != nil && mtime.Equal(s.sourceMtime) {
		return s.source, s.sourceMtime, nil
	}

	data, err := os.ReadFile(s.manifestPath)
	if err != nil {
		log.Warn("failed to read source manifest", sl.Err(err))
		return s.source, s.sourceMtime, fmt.Errorf("%s: %w: %w", op, service.ErrManifestNotFound, err)
	}

	src, err := s.rewriter.Parse(data)
	if err != nil {
		log.Error("failed to parse source manifest", sl.Err(err))
		return s.source, s.sourceMtime, fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("parsed source manifest", slog.Time("mtime", mtime))

	return src, mtime, nil
}

func (s *Stream) Name() string {
	return s.name
}

// Ready reports whether stream has ever been loaded.
func (s *Stream) Ready() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.manifest != nil
}

// Manifest returns the last rendered dynamic manifest.
func (s *Stream) Manifest() []byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.manifest
}

// CurrentNumber returns number of the live edge segment.
func (s *Stream) CurrentNumber() (int64, error) {
	const op = "Stream.CurrentNumber"

	s.mutex.Lock()
	defer s.mutex.Unlock()

	n, ok := s.index.CurrentNumber()
	if !ok {
		return 0, fmt.Errorf("%s: %w", op, service.ErrNoData)
	}

	return n, nil
}

// NumberToTime returns identifier of segment with given number.
// Caller checks CurrentNumber first to tell future segments
// from expired ones.
func (s *Stream) NumberToTime(number int64) (int64, error) {
	const op = "Stream.NumberToTime"

	s.mutex.Lock()
	defer s.mutex.Unlock()

	ident, ok := s.index.NumberToTime(number)
	if !ok {
		return 0, fmt.Errorf("%s: %w", op, service.ErrSegmentNotFound)
	}

	return ident, nil
}

// Resolve returns identifier of segment with given number.
// Both the live edge check and the lookup see the same index.
func (s *Stream) Resolve(number int64) (int64, error) {
	const op = "Stream.Resolve"

	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, ok := s.index.CurrentNumber()
	if !ok {
		return 0, fmt.Errorf("%s: %w: %w", op, service.ErrSegmentNotFound, service.ErrNoData)
	}
	if number > current {
		return 0, fmt.Errorf("%s: %w: %d > %d", op, service.ErrFutureSegment, number, current)
	}

	ident, ok := s.index.NumberToTime(number)
	if !ok {
		return 0, fmt.Errorf("%s: %w", op, service.ErrSegmentNotFound)
	}

	return ident, nil
}

// Info returns snapshot of stream state.
func (s *Stream) Info() models.StreamInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	info := models.StreamInfo{
		Name:        s.name,
		SourceMtime: s.sourceMtime,
	}
	if s.index != nil {
		info.LiveEdge = s.index.LiveEdge
		info.CurrentNumber, _ = s.index.CurrentNumber()
		info.StartTime = s.index.StartTime
		info.Segments = len(s.index.NumberToIdentifier)
	}

	return info
}
