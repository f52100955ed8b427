package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"impromptu/internal/bootstrap"
	"impromptu/internal/domain"
	"impromptu/internal/modes"
	"impromptu/internal/ports"
	"impromptu/internal/usecase"
)

const (
	eventView       = "impromptu:view"
	eventSession    = "impromptu:session"
	eventError      = "impromptu:error"
	eventVisibility = "impromptu:visibility"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services bootstrap.Services
	driver   *usecase.Driver
	stopLoop context.CancelFunc
	bootErr  error

	mu       sync.Mutex
	lastView domain.View
}

func NewApp() *App {
	return &App{lastView: domain.View{Screen: domain.ScreenHome}}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.emitError("Startup failed", err)
		return
	}
	a.services = services
	a.driver = services.Driver

	loopCtx, cancel := context.WithCancel(context.Background())
	a.stopLoop = cancel
	go func() {
		if err := services.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("event loop stopped", "error", err)
		}
	}()

	runtime.EventsOn(ctx, eventVisibility, func(data ...interface{}) {
		if len(data) > 0 && data[0] == "hidden" {
			_ = a.driver.Background(a.ctx)
		}
	})

	if err := a.driver.Refresh(ctx); err != nil {
		a.emitError("Startup failed", err)
	}
}

func (a *App) shutdown(ctx context.Context) {
	if a.driver != nil {
		if err := a.driver.Close(ctx); err != nil {
			slog.Warn("failed to close session controller", "error", err)
		}
	}
	if a.stopLoop != nil {
		a.stopLoop()
	}
	if err := a.services.Close(); err != nil {
		slog.Warn("failed to release resources", "error", err)
	}
}

// GetView returns the most recent presentation snapshot.
func (a *App) GetView() domain.View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastView
}

func (a *App) Spin() error           { return a.intent(a.driverCall((*usecase.Driver).Spin)) }
func (a *App) LetterSettled() error  { return a.intent(a.driverCall((*usecase.Driver).LetterSettled)) }
func (a *App) RevealComplete() error { return a.intent(a.driverCall((*usecase.Driver).RevealComplete)) }
func (a *App) Start() error          { return a.intent(a.driverCall((*usecase.Driver).Start)) }
func (a *App) Skip() error           { return a.intent(a.driverCall((*usecase.Driver).Skip)) }
func (a *App) Back() error           { return a.intent(a.driverCall((*usecase.Driver).Back)) }
func (a *App) Continue() error       { return a.intent(a.driverCall((*usecase.Driver).Continue)) }
func (a *App) TogglePlayback() error { return a.intent(a.driverCall((*usecase.Driver).TogglePlayback)) }
func (a *App) Replay() error         { return a.intent(a.driverCall((*usecase.Driver).Replay)) }
func (a *App) Done() error           { return a.intent(a.driverCall((*usecase.Driver).Done)) }
func (a *App) NewSession() error     { return a.intent(a.driverCall((*usecase.Driver).NewSession)) }
func (a *App) CycleMode() error      { return a.intent(a.driverCall((*usecase.Driver).CycleMode)) }

func (a *App) RequestPermission() error {
	return a.intent(a.driverCall((*usecase.Driver).RequestPermission))
}

// Rate records one criterion score during reflection.
func (a *App) Rate(criterion string, rating int) error {
	return a.intent(func() error {
		return a.driver.Rate(a.ctx, domain.Criterion(criterion), domain.Rating(rating))
	})
}

func (a *App) SetNotes(notes string) error {
	return a.intent(func() error { return a.driver.SetNotes(a.ctx, notes) })
}

// AdjustManual changes the manual think or speak duration by delta seconds.
func (a *App) AdjustManual(field string, delta int) error {
	return a.intent(func() error {
		return a.driver.AdjustManual(a.ctx, usecase.ManualField(field), delta)
	})
}

// History lists stored sessions, most recent first.
func (a *App) History() ([]domain.Session, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Records.List(), nil
}

// DeleteSession removes one stored session.
func (a *App) DeleteSession(id string) (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}
	return a.services.Records.Delete(a.ctx, id), nil
}

// Modes lists the available practice modes.
func (a *App) Modes() []ports.ModeConfig {
	table, err := modes.Load(a.services.Config.Practice.ModesFile)
	if err != nil {
		return modes.Default().All()
	}
	return table.All()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	cfg := a.services.Config
	return map[string]string{
		"captureBackend":   cfg.Audio.Backend,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"recordingsDir":    cfg.Audio.RecordingsDir,
		"database":         cfg.Storage.DBPath,
		"defaultMode":      string(cfg.Practice.DefaultMode),
	}
}

// ViewChanged forwards presentation snapshots to the frontend.
func (a *App) ViewChanged(view domain.View) {
	a.mu.Lock()
	a.lastView = view
	a.mu.Unlock()

	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventView, view)
}

// SessionRecorded announces a persisted session.
func (a *App) SessionRecorded(session domain.Session) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, session)
}

func (a *App) driverCall(fn func(*usecase.Driver, context.Context) error) func() error {
	return func() error { return fn(a.driver, a.ctx) }
}

func (a *App) intent(fn func() error) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		a.emitError(intentErrorMessage(err), err)
		return err
	}
	return nil
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.driver == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) emitError(message string, err error) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"message": message,
		"detail":  err.Error(),
	})
}

func intentErrorMessage(err error) string {
	switch {
	case errors.Is(err, usecase.ErrIllegalTransition):
		return "That action is not available right now"
	case errors.Is(err, usecase.ErrRatingsIncomplete):
		return "Rate every criterion before finishing"
	case errors.Is(err, usecase.ErrInvalidRating):
		return "Ratings must be between 1 and 5"
	case errors.Is(err, usecase.ErrUnknownCriterion):
		return "Unknown rating criterion"
	case errors.Is(err, usecase.ErrNoRecording):
		return "No recording to play"
	case errors.Is(err, usecase.ErrPlaybackUnavailable):
		return "Playback unavailable"
	case errors.Is(err, usecase.ErrUnreachableState):
		return "Session state was lost"
	default:
		return "Unexpected error"
	}
}
