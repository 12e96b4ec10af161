package router

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/GintGld/livedash/internal/lib/metrics"
	"github.com/GintGld/livedash/internal/models"

	dashSrv "github.com/GintGld/livedash/internal/service/dash"
	idxSrv "github.com/GintGld/livedash/internal/service/index"
	manSrv "github.com/GintGld/livedash/internal/service/manifest"

	dashCtr "github.com/GintGld/livedash/internal/controller/dash"
	statCtr "github.com/GintGld/livedash/internal/controller/stat"
)

type App struct {
	log     *slog.Logger
	address string
	app     *fiber.App
}

// New returns configured router.App
func New(
	log *slog.Logger,
	address string,
	timeout time.Duration,
	idleTimeout time.Duration,
	cfg models.StreamConfig,
) *App {
	// Create services
	met := metrics.New()

	scanner := idxSrv.New(
		log,
		cfg.DataDir,
		cfg.SegmentDuration,
		cfg.Timescale,
	)

	rewriter := manSrv.New(
		log,
		cfg,
	)

	translator := dashSrv.New(
		log,
		cfg.DataDir,
		scanner,
		rewriter,
		met,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:           timeout,
		WriteTimeout:          timeout,
		IdleTimeout:           idleTimeout,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestLogger(log))

	app.Get("/metrics", adaptor.HTTPHandler(met.Handler(func() {
		met.SetActiveStreams(translator.Len())
	})))

	// Mount controllers to an app,
	// catch-all dash controller goes last
	app.Mount("/stat", statCtr.New(translator))
	app.Mount("/", dashCtr.New(
		log,
		cfg.DataDir,
		cfg.TimeShiftBufferDepth,
		translator,
		met,
	))

	return &App{
		log:     log,
		address: address,
		app:     app,
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	a.log.Info("http server started", slog.String("address", a.address))

	return a.app.Listen(a.address)
}

func (a *App) Stop() {
	a.app.Shutdown()
}
