package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Worker is a long-running loop, e.g. the liveness scheduler.
type Worker interface {
	Run(ctx context.Context) error
}

type Factory func(id int) Worker

// Manager keeps num workers running and restarts any that exit with an
// error after backoff. A worker returning nil or context.Canceled is done.
type Manager struct {
	factory     Factory
	num         int
	backoff     time.Duration
	log         zerolog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	startedOnce sync.Once
}

func NewManager(num int, backoff time.Duration, log zerolog.Logger, f Factory) *Manager {
	return &Manager{
		factory: f,
		num:     num,
		backoff: backoff,
		log:     log,
	}
}

func (m *Manager) Start(parent context.Context) {
	m.startedOnce.Do(func() {
		m.ctx, m.cancel = context.WithCancel(parent)
		for i := 0; i < m.num; i++ {
			id := i + 1
			m.wg.Add(1)
			go m.runOne(id)
		}
	})
}

func (m *Manager) runOne(id int) {
	defer m.wg.Done()

	for {
		w := m.factory(id)
		err := w.Run(m.ctx)

		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		m.log.Warn().Int("worker", id).Err(err).Dur("backoff", m.backoff).Msg("worker stopped with error, restarting")

		select {
		case <-time.After(m.backoff):
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
