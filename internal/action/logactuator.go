package action

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LogActuator is a dry-run Actuator that logs each primitive instead of
// driving the desktop. Used by demos and by the run command when no real
// actuation backend is wired in.
type LogActuator struct {
	logger *zap.Logger
}

// NewLogActuator creates a dry-run actuator.
func NewLogActuator(logger *zap.Logger) *LogActuator {
	return &LogActuator{logger: logger.Named("actuator.dryrun")}
}

func (a *LogActuator) MoveMouse(ctx context.Context, x, y int) error {
	a.logger.Info("move", zap.Int("x", x), zap.Int("y", y))
	return ctx.Err()
}

func (a *LogActuator) Click(ctx context.Context, button string) error {
	a.logger.Info("click", zap.String("button", button))
	return ctx.Err()
}

func (a *LogActuator) TypeText(ctx context.Context, text string) error {
	a.logger.Info("type", zap.String("text", text))
	return ctx.Err()
}

func (a *LogActuator) PressKey(ctx context.Context, key string) error {
	a.logger.Info("press", zap.String("key", key))
	return ctx.Err()
}

func (a *LogActuator) KeyCombo(ctx context.Context, keys []string) error {
	a.logger.Info("hotkey", zap.Strings("keys", keys))
	return ctx.Err()
}

func (a *LogActuator) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
