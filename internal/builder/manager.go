package builder

import (
	"context"
	"time"

	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/worker"
)

const OpBuild = "build.run"

// Manager runs builds on their own worker so a long build never delays git
// or API requests.
type Manager struct {
	runner  Runner
	facade  *worker.Facade
	timeout time.Duration
}

func NewManager(ctx context.Context, runner Runner, timeouts config.Timeouts) *Manager {
	return &Manager{
		runner:  runner,
		facade:  worker.New(ctx, "build"),
		timeout: timeouts.Build.Duration,
	}
}

func (m *Manager) Events() <-chan worker.Event {
	return m.facade.Events()
}

func (m *Manager) Close(timeout time.Duration) error {
	return m.facade.Close(timeout)
}

// Build payload: models.BuildResult
func (m *Manager) Build(req Request) uint64 {
	return m.facade.Submit(worker.Request{
		Name:    OpBuild,
		Timeout: m.timeout,
		Run: func(ctx context.Context) (any, error) {
			return m.runner.Run(ctx, req)
		},
	})
}
