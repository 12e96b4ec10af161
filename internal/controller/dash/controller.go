package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/GintGld/livedash/internal/lib/logger/sl"
	"github.com/GintGld/livedash/internal/models"
	"github.com/GintGld/livedash/internal/service"
	"github.com/GintGld/livedash/internal/service/stream"
)

// New returns fiber app serving manifests,
// init segments and media segments.
func New(
	log *slog.Logger,
	dataDir string,
	segmentMaxAge time.Duration,
	translator Translator,
	metrics Metrics,
) *fiber.App {
	dashCtr := &dashController{
		log:          log,
		dataDir:      dataDir,
		segmentCache: "max-age=" + strconv.Itoa(int(segmentMaxAge.Seconds())),
		translator:   translator,
		metrics:      metrics,
	}

	app := fiber.New()

	app.Get("/*", dashCtr.serve)

	return app
}

type dashController struct {
	log          *slog.Logger
	dataDir      string
	segmentCache string
	translator   Translator
	metrics      Metrics
}

type Translator interface {
	Lookup(name string) (*stream.Stream, error)
}

type Metrics interface {
	IncRequests(kind string, code int)
}

// Errors exposed to clients, checked in order.
var publicErrors = []error{
	service.ErrUnknownExtension,
	service.ErrBadRequest,
	service.ErrDirectoryUnreadable,
	service.ErrStreamNotFound,
	service.ErrFutureSegment,
	service.ErrSegmentNotFound,
}

func (dashCtr *dashController) serve(c *fiber.Ctx) error {
	const op = "dashController.serve"

	log := dashCtr.log.With(
		slog.String("op", op),
		slog.String("path", c.Path()),
	)

	req, err := ParseRequest(c.Params("*"))
	if err != nil {
		return dashCtr.fail(c, log, "unknown", err)
	}

	st, err := dashCtr.translator.Lookup(req.Stream)
	if err != nil {
		return dashCtr.fail(c, log, req.Kind.String(), err)
	}

	switch req.Kind {
	case models.KindManifest:
		c.Set(fiber.HeaderContentType, mimeManifest)
		c.Set(fiber.HeaderCacheControl, "no-cache")
		dashCtr.count(req.Kind.String(), fiber.StatusOK)
		return c.Status(fiber.StatusOK).Send(st.Manifest())

	case models.KindInit:
		return dashCtr.sendFile(c, log, req, req.File)

	case models.KindSegment:
		ident, err := st.Resolve(req.Number)
		if err != nil {
			return dashCtr.fail(c, log, req.Kind.String(), fmt.Errorf("%s: %w", op, err))
		}

		fileName := fmt.Sprintf("%s-%d.%s", req.Stream, ident, req.Ext)
		log.Debug("serving segment", slog.String("file", fileName), slog.Int64("number", req.Number))

		return dashCtr.sendFile(c, log, req, fileName)
	}

	return dashCtr.fail(c, log, "unknown", fmt.Errorf("%s: %w: unexpected request kind %d", op, service.ErrBadRequest, req.Kind))
}

// sendFile streams file from the data directory.
func (dashCtr *dashController) sendFile(c *fiber.Ctx, log *slog.Logger, req models.Request, fileName string) error {
	const op = "dashController.sendFile"

	f, err := os.Open(filepath.Join(dashCtr.dataDir, filepath.Base(fileName)))
	if err != nil {
		return dashCtr.fail(c, log, req.Kind.String(), fmt.Errorf("%s: %w: %w", op, service.ErrSegmentNotFound, err))
	}

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		if err == nil {
			err = errors.New("not a regular file")
		}
		return dashCtr.fail(c, log, req.Kind.String(), fmt.Errorf("%s: %w: %w", op, service.ErrSegmentNotFound, err))
	}

	c.Set(fiber.HeaderContentType, mimeTypes[req.Ext])
	c.Set(fiber.HeaderCacheControl, dashCtr.segmentCache)
	dashCtr.count(req.Kind.String(), fiber.StatusOK)

	// file is closed by fasthttp once body is sent
	return c.Status(fiber.StatusOK).SendStream(f, int(info.Size()))
}

// fail responds with status matching the error.
func (dashCtr *dashController) fail(c *fiber.Ctx, log *slog.Logger, kind string, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"

	for _, target := range publicErrors {
		if errors.Is(err, target) {
			code = statusOf(target)
			msg = target.Error()
			break
		}
	}

	if code >= fiber.StatusInternalServerError {
		log.Error("failed to serve request", sl.Err(err))
	} else {
		log.Info("request rejected", slog.Int("status", code), sl.Err(err))
	}

	dashCtr.count(kind, code)

	return c.Status(code).JSON(fiber.Map{
		"error": msg,
	})
}

func (dashCtr *dashController) count(kind string, code int) {
	if dashCtr.metrics != nil {
		dashCtr.metrics.IncRequests(kind, code)
	}
}

func statusOf(err error) int {
	switch err {
	case service.ErrUnknownExtension, service.ErrBadRequest:
		return fiber.StatusBadRequest
	case service.ErrStreamNotFound, service.ErrFutureSegment, service.ErrSegmentNotFound:
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}
