package service

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GintGld/livedash/internal/models"
	"github.com/GintGld/livedash/internal/service"
	idxSrv "github.com/GintGld/livedash/internal/service/index"
	manSrv "github.com/GintGld/livedash/internal/service/manifest"
	"github.com/GintGld/livedash/internal/service/stream"
)

const sourceManifest = `<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static">
	<Period id="0">
		<AdaptationSet contentType="audio">
			<Representation id="0" mimeType="audio/mp4" bandwidth="96000">
				<SegmentTemplate initialization="{name}-init.m4a" media="{name}-$Time$.m4a"/>
			</Representation>
		</AdaptationSet>
	</Period>
</MPD>`

var (
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
	epoch   = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

type fakeMetrics struct {
	mutex    sync.Mutex
	loaded   int
	failures map[string]int
}

func (m *fakeMetrics) IncRefreshFailures(reason string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[reason]++
}

func (m *fakeMetrics) IncStreamsLoaded() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.loaded++
}

func newTranslator(t *testing.T, dir string) (*Translator, *fakeMetrics) {
	t.Helper()

	cfg := models.StreamConfig{
		DataDir:              dir,
		SegmentDuration:      2,
		Timescale:            1000,
		MinimumUpdatePeriod:  3 * time.Minute,
		MinBufferTime:        4 * time.Second,
		TimeShiftBufferDepth: 3 * time.Minute,
		MaxSegmentDuration:   2 * time.Second,
	}

	met := &fakeMetrics{}
	tr := New(
		discard,
		dir,
		idxSrv.New(discard, dir, cfg.SegmentDuration, cfg.Timescale),
		manSrv.New(discard, cfg),
		met,
	)

	return tr, met
}

func write(t *testing.T, dir, name, content string, mtime time.Time) {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func publish(t *testing.T, dir, name string, idents ...int) {
	t.Helper()

	write(t, dir, name+".mpd", manifestFor(name), epoch)
	for i, ident := range idents {
		write(t, dir, segmentName(name, ident), "data", epoch.Add(time.Duration(i)*time.Second))
	}
}

func manifestFor(name string) string {
	return strings.ReplaceAll(sourceManifest, "{name}", name)
}

func segmentName(name string, ident int) string {
	return name + "-" + strconv.Itoa(ident) + ".m4a"
}

func TestLookupLoadsStream(t *testing.T) {
	dir := t.TempDir()
	name := gofakeit.LetterN(8)
	publish(t, dir, name, 2000, 4000, 6000)

	tr, met := newTranslator(t, dir)

	st, err := tr.Lookup(name)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, name, st.Name())

	current, err := st.CurrentNumber()
	require.NoError(t, err)
	assert.Equal(t, int64(3), current)

	again, err := tr.Lookup(name)
	require.NoError(t, err)
	assert.Same(t, st, again)
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, 1, met.loaded)
}

func TestLookupEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	name := gofakeit.LetterN(8)
	write(t, dir, name+".mpd", manifestFor(name), epoch)

	tr, met := newTranslator(t, dir)

	st, err := tr.Lookup(name)
	require.ErrorIs(t, err, service.ErrStreamNotFound)
	assert.ErrorIs(t, err, service.ErrNoUsableSegments)
	assert.Nil(t, st)
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 1, met.failures["segments"])

	// next lookup starts from scratch
	write(t, dir, segmentName(name, 2000), "data", epoch)

	st, err = tr.Lookup(name)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 1, tr.Len())
}

func TestLookupUnknownStream(t *testing.T) {
	dir := t.TempDir()
	publish(t, dir, "known", 2000)

	tr, _ := newTranslator(t, dir)

	_, err := tr.Lookup("unknown")
	require.ErrorIs(t, err, service.ErrStreamNotFound)
	assert.Equal(t, 0, tr.Len())
}

func TestLookupServesStaleState(t *testing.T) {
	dir := t.TempDir()
	name := gofakeit.LetterN(8)
	publish(t, dir, name, 2000, 4000)

	tr, met := newTranslator(t, dir)

	st, err := tr.Lookup(name)
	require.NoError(t, err)
	good := st.Manifest()

	write(t, dir, name+".mpd", "garbage", epoch.Add(time.Minute))

	again, err := tr.Lookup(name)
	require.NoError(t, err)
	assert.Same(t, st, again)
	assert.Equal(t, good, again.Manifest())
	assert.Equal(t, 1, met.failures["manifest"])
}

func TestLookupUnreadableDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "data")
	require.NoError(t, os.Mkdir(dir, 0755))
	publish(t, dir, "live", 2000)

	tr, met := newTranslator(t, dir)

	_, err := tr.Lookup("live")
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))

	_, err = tr.Lookup("live")
	require.ErrorIs(t, err, service.ErrDirectoryUnreadable)

	_, err = tr.Lookup("other")
	require.ErrorIs(t, err, service.ErrDirectoryUnreadable)
	assert.NotErrorIs(t, err, service.ErrStreamNotFound)

	assert.Equal(t, 2, met.failures["directory"])
	assert.Equal(t, 1, tr.Len())
}

func TestLookupConcurrent(t *testing.T) {
	dir := t.TempDir()
	name := gofakeit.LetterN(8)
	publish(t, dir, name, 2000, 4000, 6000)

	tr, _ := newTranslator(t, dir)

	const workers = 16

	var wg sync.WaitGroup
	results := make([]*stream.Stream, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = tr.Lookup(name)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, tr.Len())

	first, err := tr.Lookup(name)
	require.NoError(t, err)

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, first, results[i])
	}
}

func TestStreams(t *testing.T) {
	dir := t.TempDir()
	publish(t, dir, "beta", 2000, 4000)
	publish(t, dir, "alpha", 2000)

	tr, _ := newTranslator(t, dir)

	_, err := tr.Lookup("beta")
	require.NoError(t, err)
	_, err = tr.Lookup("alpha")
	require.NoError(t, err)

	streams := tr.Streams()
	require.Len(t, streams, 2)
	assert.Equal(t, "alpha", streams[0].Name)
	assert.Equal(t, "beta", streams[1].Name)
	assert.Equal(t, int64(4000), streams[1].LiveEdge)
	assert.Equal(t, int64(2), streams[1].CurrentNumber)
}
