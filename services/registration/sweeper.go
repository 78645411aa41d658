package registration

import (
	"context"
	"time"

	"github.com/kumadojo/api/services/logging"
	"go.uber.org/zap"
)

// Sweeper periodically purges expired pending accounts. FindByToken already
// refuses expired rows, so the sweep is garbage collection, not correctness.
type Sweeper struct {
	store    *PendingStore
	interval time.Duration
	logger   *logging.Service
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSweeper(store *PendingStore, interval time.Duration, logger *logging.Service) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
}

func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.store.DeleteExpired(); err != nil {
				s.logger.Error("pending account sweep failed", zap.Error(err))
			}
		}
	}
}
