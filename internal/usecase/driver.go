package usecase

import (
	"context"

	"impromptu/internal/domain"
)

// Invoker runs a function on the controller's logical thread and waits for it.
type Invoker interface {
	Call(ctx context.Context, fn func()) error
}

// Driver gives presentation layers goroutine-safe access to a SessionController.
type Driver struct {
	invoker    Invoker
	controller *SessionController
}

func NewDriver(invoker Invoker, controller *SessionController) *Driver {
	return &Driver{invoker: invoker, controller: controller}
}

// Do runs fn against the controller on its thread and returns fn's error.
func (d *Driver) Do(ctx context.Context, fn func(*SessionController) error) error {
	var err error
	if callErr := d.invoker.Call(ctx, func() { err = fn(d.controller) }); callErr != nil {
		return callErr
	}
	return err
}

func (d *Driver) Spin(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).Spin)
}

func (d *Driver) RevealComplete(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).RevealComplete)
}

func (d *Driver) LetterSettled(ctx context.Context) error {
	return d.Do(ctx, func(c *SessionController) error {
		c.LetterSettled()
		return nil
	})
}

func (d *Driver) Start(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).Start)
}

func (d *Driver) Skip(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).Skip)
}

func (d *Driver) Back(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).Back)
}

func (d *Driver) Background(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).Background)
}

func (d *Driver) Continue(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).Continue)
}

func (d *Driver) TogglePlayback(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).TogglePlayback)
}

func (d *Driver) Replay(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).Replay)
}

func (d *Driver) Rate(ctx context.Context, criterion domain.Criterion, rating domain.Rating) error {
	return d.Do(ctx, func(c *SessionController) error { return c.Rate(criterion, rating) })
}

func (d *Driver) SetNotes(ctx context.Context, notes string) error {
	return d.Do(ctx, func(c *SessionController) error { return c.SetNotes(notes) })
}

func (d *Driver) AdjustManual(ctx context.Context, field ManualField, delta int) error {
	return d.Do(ctx, func(c *SessionController) error { return c.AdjustManual(field, delta) })
}

func (d *Driver) Done(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).Done)
}

func (d *Driver) NewSession(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).NewSession)
}

func (d *Driver) CycleMode(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).CycleMode)
}

func (d *Driver) RequestPermission(ctx context.Context) error {
	return d.Do(ctx, (*SessionController).RequestPermission)
}

func (d *Driver) Refresh(ctx context.Context) error {
	return d.Do(ctx, func(c *SessionController) error {
		c.Refresh()
		return nil
	})
}

func (d *Driver) Close(ctx context.Context) error {
	return d.Do(ctx, func(c *SessionController) error {
		c.Close()
		return nil
	})
}
