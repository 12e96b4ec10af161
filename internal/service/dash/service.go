package service

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/GintGld/livedash/internal/lib/logger/sl"
	"github.com/GintGld/livedash/internal/models"
	"github.com/GintGld/livedash/internal/service"
	"github.com/GintGld/livedash/internal/service/stream"
)

// Translator keeps live streams by name. Streams are
// created on first successful lookup and never removed.
type Translator struct {
	log       *slog.Logger
	metrics   Metrics
	newStream func(name string) *stream.Stream

	// guards map access only
	mutex   sync.Mutex
	streams map[string]*stream.Stream
}

type Metrics interface {
	IncRefreshFailures(reason string)
	IncStreamsLoaded()
}

// New returns new Translator. metrics may be nil.
func New(
	log *slog.Logger,
	dataDir string,
	scanner stream.Scanner,
	rewriter stream.Rewriter,
	metrics Metrics,
) *Translator {
	return &Translator{
		log:     log,
		metrics: metrics,
		newStream: func(name string) *stream.Stream {
			return stream.New(log, name, dataDir, scanner, rewriter)
		},
		streams: make(map[string]*stream.Stream),
	}
}

// Lookup returns refreshed stream.
//
// Stream that has been loaded once stays available
// even if later refreshes fail, except for an unreadable
// data directory. Stream that can't be loaded is not
// kept, the next lookup starts from scratch.
func (t *Translator) Lookup(name string) (*stream.Stream, error) {
	const op = "Translator.Lookup"

	log := t.log.With(
		slog.String("op", op),
		slog.String("stream", name),
	)

	t.mutex.Lock()
	st, ok := t.streams[name]
	t.mutex.Unlock()

	if ok {
		if _, err := st.Refresh(); err != nil {
			t.failed(err)
			if errors.Is(err, service.ErrDirectoryUnreadable) {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			log.Warn("failed to refresh stream, serving last good state", sl.Err(err))
		}
		return st, nil
	}

	log.Info("loading stream data")

	st = t.newStream(name)
	_, err := st.Refresh()
	if err != nil {
		t.failed(err)
	}
	if !st.Ready() {
		if err == nil {
			err = service.ErrNoUsableSegments
		}
		if errors.Is(err, service.ErrDirectoryUnreadable) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Warn("unable to load stream", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, service.ErrStreamNotFound, err)
	}

	t.mutex.Lock()
	if existing, ok := t.streams[name]; ok {
		// concurrent lookup was first
		st = existing
	} else {
		t.streams[name] = st
		if t.metrics != nil {
			t.metrics.IncStreamsLoaded()
		}
	}
	t.mutex.Unlock()

	return st, nil
}

// Streams returns info about all loaded streams
// sorted by name.
func (t *Translator) Streams() []models.StreamInfo {
	t.mutex.Lock()
	streams := make([]*stream.Stream, 0, len(t.streams))
	for _, st := range t.streams {
		streams = append(streams, st)
	}
	t.mutex.Unlock()

	res := make([]models.StreamInfo, 0, len(streams))
	for _, st := range streams {
		res = append(res, st.Info())
	}
	slices.SortFunc(res, func(a, b models.StreamInfo) int {
		return strings.Compare(a.Name, b.Name)
	})

	return res
}

// Len returns number of loaded streams.
func (t *Translator) Len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return len(t.streams)
}

func (t *Translator) failed(err error) {
	if t.metrics == nil {
		return
	}

	switch {
	case errors.Is(err, service.ErrDirectoryUnreadable):
		t.metrics.IncRefreshFailures("directory")
	case errors.Is(err, service.ErrNoUsableSegments):
		t.metrics.IncRefreshFailures("segments")
	case errors.Is(err, service.ErrManifestNotFound), errors.Is(err, service.ErrManifestParse):
		t.metrics.IncRefreshFailures("manifest")
	default:
		t.metrics.IncRefreshFailures("other")
	}
}
