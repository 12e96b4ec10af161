package app

import (
	"log/slog"
	"time"

	routerApp "github.com/GintGld/livedash/internal/app/router"
	"github.com/GintGld/livedash/internal/models"
)

type App struct {
	Router routerApp.App
}

func New(
	log *slog.Logger,
	address string,
	timeout time.Duration,
	idleTimeout time.Duration,
	streamCfg models.StreamConfig,
) *App {
	routerApp := routerApp.New(
		log,
		address,
		timeout,
		idleTimeout,
		streamCfg,
	)

	return &App{
		Router: *routerApp,
	}
}
