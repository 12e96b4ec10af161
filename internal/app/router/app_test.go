package router

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"
	"github.com/zencoder/go-dash/v3/mpd"

	"github.com/GintGld/livedash/internal/models"
)

const sourceManifest = `<?xml version="1.0" encoding="utf-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT10M0S">
	<Period id="0">
		<AdaptationSet contentType="audio">
			<Representation id="0" mimeType="audio/mp4" codecs="mp4a.40.2" bandwidth="128000">
				<SegmentTemplate initialization="{name}-init.m4a" media="{name}-$Time$.m4a"/>
			</Representation>
		</AdaptationSet>
	</Period>
</MPD>
`

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newExpect(t *testing.T) (*httpexpect.Expect, string) {
	t.Helper()

	dir := t.TempDir()
	name := gofakeit.LetterN(10)
	epoch := time.Now().Add(-time.Minute)

	files := map[string]string{
		name + ".mpd":      strings.ReplaceAll(sourceManifest, "{name}", name),
		name + "-init.m4a": "init",
		name + "-0.m4a":    "segment 0",
		name + "-2000.m4a": "segment 2000",
	}
	for file, content := range files {
		path := filepath.Join(dir, file)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		require.NoError(t, os.Chtimes(path, epoch, epoch))
	}
	// live edge
	edge := filepath.Join(dir, name+"-2000.m4a")
	require.NoError(t, os.Chtimes(edge, epoch.Add(time.Second), epoch.Add(time.Second)))

	a := New(discard, "127.0.0.1:0", time.Second, time.Second, models.StreamConfig{
		DataDir:              dir,
		SegmentDuration:      2,
		Timescale:            1000,
		MinimumUpdatePeriod:  3 * time.Minute,
		MinBufferTime:        4 * time.Second,
		TimeShiftBufferDepth: 3 * time.Minute,
		MaxSegmentDuration:   2 * time.Second,
	})

	e := httpexpect.WithConfig(httpexpect.Config{
		BaseURL: "http://localhost",
		Client: &http.Client{
			Transport: httpexpect.NewFastBinder(a.app.Handler()),
		},
		Reporter: httpexpect.NewAssertReporter(t),
	})

	return e, name
}

func TestRoutes(t *testing.T) {
	e, name := newExpect(t)

	body := e.GET("/" + name + ".mpd").
		Expect().
		Status(http.StatusOK).
		Body().Raw()

	man, err := mpd.ReadFromString(body)
	require.NoError(t, err)
	require.NotNil(t, man.Type)
	require.Equal(t, "dynamic", *man.Type)

	e.GET("/" + name + "-1.m4a").
		Expect().
		Status(http.StatusOK).
		Body().IsEqual("segment 2000")

	e.GET("/" + name + "-2.m4a").
		Expect().
		Status(http.StatusNotFound)

	streams := e.GET("/stat/streams").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		Value("streams").Array()
	streams.Length().IsEqual(1)
	streams.Value(0).Object().HasValue("name", name)

	e.GET("/stat/streams/number").
		Expect().
		Status(http.StatusOK).
		JSON().Object().HasValue("streams", 1)

	metrics := e.GET("/metrics").
		Expect().
		Status(http.StatusOK).
		Body()
	metrics.Contains("livedash_active_streams 1")
	metrics.Contains(`livedash_requests_total{code="200",kind="manifest"} 1`)
	metrics.Contains(`livedash_requests_total{code="404",kind="segment"} 1`)
	metrics.Contains("livedash_streams_loaded_total 1")
}

func TestUnknownPath(t *testing.T) {
	e, _ := newExpect(t)

	e.GET("/stat").
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().HasValue("error", "unknown file type requested")
}
