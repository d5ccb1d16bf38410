package backend

import (
	"context"
	"strings"
	"time"

	"github.com/ShayCichocki/maestro/pkg/models"
)

// EchoConfig configures an echo backend.
type EchoConfig struct {
	ID string
	// Prefix is prepended to the echoed input.
	Prefix string
	// Delay is applied before answering and between streamed words.
	Delay time.Duration
}

// NewEcho returns a custom backend that answers with its input. It needs no
// network access and is used for dry runs.
func NewEcho(cfg EchoConfig) *Custom {
	handler := func(ctx context.Context, task models.Task) (string, error) {
		if err := sleep(ctx, cfg.Delay); err != nil {
			return "", err
		}
		return cfg.Prefix + task.Input, nil
	}
	stream := func(ctx context.Context, task models.Task, emit func(string)) error {
		if cfg.Prefix != "" {
			emit(cfg.Prefix)
		}
		words := strings.SplitAfter(task.Input, " ")
		for _, w := range words {
			if w == "" {
				continue
			}
			if err := sleep(ctx, cfg.Delay); err != nil {
				return err
			}
			emit(w)
		}
		return nil
	}

	// NewCustom only fails on a nil handler.
	c, _ := NewCustom(cfg.ID, handler, WithStreamHandler(stream))
	return c
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
