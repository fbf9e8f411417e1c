package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/skaidler/captiondeck/internal/pkg/billing"
	"github.com/skaidler/captiondeck/internal/pkg/quota"
)

const (
	DefaultInterval = 24 * time.Hour
	sweepTimeout    = 2 * time.Minute
)

// Sweeper runs the scheduled maintenance passes: deleting fixed-term
// subscriptions whose term has elapsed and garbage-collecting stale usage
// rows. It is the only mechanism terminating one-time purchases. Failures are
// logged and retried on the next tick; nothing here is fatal to the host
// process, and it runs safely concurrent with the reconciler (a delete racing
// an upsert resolves to "no entitlement", the conservative outcome).
type Sweeper struct {
	repo     billing.Repository
	usage    *quota.Counter
	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	now      func() time.Time
}

// New creates a sweeper over the given stores. interval <= 0 falls back to
// the daily default.
func New(repo billing.Repository, usage *quota.Counter, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		repo:     repo,
		usage:    usage,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs one sweep immediately and then on every tick. Safe to call more
// than once; a running sweeper is left alone.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	// Recreate the stop channel so the sweeper can be restarted after Stop.
	s.stopCh = make(chan struct{})
	s.running = true
	s.ticker = time.NewTicker(s.interval)

	log.Info("[Sweeper] Starting expiry and usage sweeps")

	s.wg.Add(1)
	go s.worker()
}

// Stop halts the ticker and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	log.Info("[Sweeper] Stopped")
}

func (s *Sweeper) worker() {
	defer s.wg.Done()

	// One pass at process start, then the schedule.
	s.sweepOnce()

	for {
		select {
		case <-s.ticker.C:
			s.sweepOnce()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	now := s.now()
	expired, err := s.repo.DeleteExpiredSubscriptions(ctx, now)
	if err != nil {
		// Transient store trouble; the next tick retries.
		log.Errorf("[Sweeper] expiry sweep failed: %v", err)
	} else if expired > 0 {
		log.Infof("[Sweeper] removed %d expired subscription(s)", expired)
	}

	if s.usage == nil {
		return
	}
	stale, err := s.usage.SweepStale(ctx)
	if err != nil {
		log.Errorf("[Sweeper] usage sweep failed: %v", err)
	} else if stale > 0 {
		log.Infof("[Sweeper] removed %d stale usage row(s)", stale)
	}
}
