package pipeline

import (
	"context"
	"log/slog"
	"time"

	"cloudpico-bridge/internal/record"
)

// Provider produces records into the buffer of the task it runs on. All of a
// task's providers run on the task's goroutine, which is the buffer's only
// writer.
type Provider interface {
	Name() string
	Setup(ctx context.Context) error
	// Loop does one round of work and returns how long the task may sleep
	// before calling it again.
	Loop(now time.Time) time.Duration
}

// SystemReporter contributes to the bridge's own status message. Both
// methods return the number of records still missing in dst, 0 on success,
// and write nothing when they return non-zero.
type SystemReporter interface {
	SystemDiscovery() []Entity
	SystemUpdate(dst record.Target, uptime time.Duration) int
}

// MaxWait bounds the sleep between provider rounds.
const MaxWait = time.Second

// Task is the writer context of one ring buffer.
type Task struct {
	name      string
	providers []Provider
	logger    *slog.Logger
}

func NewTask(name string, logger *slog.Logger, providers ...Provider) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	return &Task{name: name, providers: providers, logger: logger}
}

// Run sets up every provider and then loops until ctx is done. A provider
// whose setup fails is left out; the rest keep running.
func (t *Task) Run(ctx context.Context) error {
	active := make([]Provider, 0, len(t.providers))
	for _, p := range t.providers {
		if err := p.Setup(ctx); err != nil {
			t.logger.Warn("provider could not be initialized; task continues without it",
				"task", t.name,
				"provider", p.Name(),
				"error", err,
			)
			continue
		}
		t.logger.Info("provider started", "task", t.name, "provider", p.Name())
		active = append(active, p)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-timer.C:
			wait := MaxWait
			for _, p := range active {
				if d := p.Loop(now); d < wait {
					wait = d
				}
			}
			timer.Reset(max(wait, time.Millisecond))
		}
	}
}
