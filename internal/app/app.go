package app

import (
	"log/slog"
	"time"
)

type App struct {
	Store    *Store
	Schedule Schedule
	Logger   *slog.Logger
	Clock    func() time.Time
}

func New(store *Store, schedule Schedule, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{Store: store, Schedule: schedule, Logger: logger, Clock: time.Now}
}

func (a *App) now() time.Time {
	if a.Clock == nil {
		return time.Now()
	}
	return a.Clock()
}
