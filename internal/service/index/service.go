package service

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/GintGld/livedash/internal/lib/logger/sl"
	"github.com/GintGld/livedash/internal/models"
	"github.com/GintGld/livedash/internal/service"
)

// Scanner builds segment indexes
// from the data directory listing.
type Scanner struct {
	log             *slog.Logger
	dir             string
	segmentDuration int
	timescale       int64
	now             func() time.Time
}

// New returns new Scanner. Configuration values
// must be validated by caller.
func New(
	log *slog.Logger,
	dir string,
	segmentDuration int,
	timescale int64,
) *Scanner {
	return &Scanner{
		log:             log,
		dir:             dir,
		segmentDuration: segmentDuration,
		timescale:       timescale,
		now:             time.Now,
	}
}

// WithClock replaces time source.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Scan lists data directory and builds index
// of segments belonging to the stream.
//
// Returns nil index without error if
// no segments were found.
func (s *Scanner) Scan(name string) (*models.SegmentIndex, error) {
	const op = "Scanner.Scan"

	log := s.log.With(
		slog.String("op", op),
		slog.String("stream", name),
	)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Error("failed to list data directory", slog.String("dir", s.dir), sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, service.ErrDirectoryUnreadable, err)
	}

	prefix := name + "-"
	mtimes := make(map[int64]time.Time)

	// ReadDir returns entries sorted by name,
	// so the first file wins for duplicate identifiers.
	for _, entry := range entries {
		fileName := entry.Name()
		if !strings.HasPrefix(fileName, prefix) || entry.IsDir() {
			continue
		}

		ident, ok := Identifier(fileName)
		if !ok {
			continue
		}
		if _, ok := mtimes[ident]; ok {
			continue
		}

		// symlinks are followed, mtime is the target's
		info, err := os.Stat(filepath.Join(s.dir, fileName))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Warn("failed to stat segment", slog.String("file", fileName), sl.Err(err))
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		mtimes[ident] = info.ModTime()
	}

	idx := models.NewSegmentIndex(
		mtimes,
		int64(s.segmentDuration)*s.timescale,
		s.timescale,
		time.Duration(s.segmentDuration)*time.Second,
		s.now(),
	)
	if idx == nil {
		log.Debug("no segments found")
		return nil, nil
	}

	current, _ := idx.CurrentNumber()
	log.Debug(
		"scanned segments",
		slog.Int("identifiers", len(mtimes)),
		slog.Int64("liveEdge", idx.LiveEdge),
		slog.Int64("currentNumber", current),
		slog.Float64("age", idx.Age.Seconds()),
		slog.String("startTime", idx.StartTime.UTC().Format(models.TimeFormat)),
	)

	return idx, nil
}

// Identifier extracts segment identifier from file name
// of form <stream>-...-<identifier>.<ext>.
func Identifier(fileName string) (int64, bool) {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	tokens := strings.Split(base, "-")
	last := tokens[len(tokens)-1]

	if last == "" {
		return 0, false
	}
	for _, r := range last {
		if r < '0' || r > '9' {
			return 0, false
		}
	}

	ident, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, false
	}

	return ident, true
}
