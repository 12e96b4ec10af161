package controller

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/zencoder/go-dash/v3/mpd"

	"github.com/GintGld/livedash/internal/models"
	"github.com/GintGld/livedash/internal/service"
)

const mimeManifest = "application/dash+xml"

// Content types of served files by extension.
var mimeTypes = map[string]string{
	"mpd": mimeManifest,
	"m4v": mpd.DASH_MIME_TYPE_VIDEO_MP4,
	"m4a": mpd.DASH_MIME_TYPE_AUDIO_MP4,
}

// ParseRequest parses requested path. Only the
// final path element is taken into account.
func ParseRequest(p string) (models.Request, error) {
	const op = "ParseRequest"

	file := p
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		file = p[i+1:]
	}
	if file == "" {
		return models.Request{}, fmt.Errorf("%s: %w: media unspecified", op, service.ErrBadRequest)
	}
	if strings.HasPrefix(file, ".") {
		return models.Request{}, fmt.Errorf("%s: %w: hidden file %q", op, service.ErrBadRequest, file)
	}

	ext := strings.TrimPrefix(path.Ext(file), ".")
	if _, ok := mimeTypes[ext]; !ok {
		return models.Request{}, fmt.Errorf("%s: %w: %q", op, service.ErrUnknownExtension, ext)
	}

	base := strings.TrimSuffix(file, "."+ext)
	stream, rest, hasDash := strings.Cut(base, "-")
	if stream == "" {
		return models.Request{}, fmt.Errorf("%s: %w: empty stream name", op, service.ErrBadRequest)
	}

	req := models.Request{
		Stream: stream,
		File:   file,
		Ext:    ext,
	}

	switch {
	case ext == "mpd":
		if hasDash {
			return models.Request{}, fmt.Errorf("%s: %w: unexpected manifest %q", op, service.ErrBadRequest, file)
		}
		req.Kind = models.KindManifest
	case hasDash && strings.Contains(rest, "init"):
		// stream name is not searched, stream
		// "initial" still has numbered segments
		req.Kind = models.KindInit
	default:
		if !hasDash {
			return models.Request{}, fmt.Errorf("%s: %w: no segment number in %q", op, service.ErrBadRequest, file)
		}
		number, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || number < 0 {
			return models.Request{}, fmt.Errorf("%s: %w: invalid segment number %q", op, service.ErrBadRequest, rest)
		}
		req.Kind = models.KindSegment
		req.Number = number
	}

	return req, nil
}

