// Package jobs runs the periodic maintenance work of the router.
package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"payroute.backend/pkg/logger"
	"payroute.backend/pkg/utils"
)

// Observer receives one call per job run
type Observer interface {
	ObserveJob(job string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveJob(string, error) {}

// ticker runs tick every interval until the context ends or Stop is called.
type ticker struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context) error
	observer Observer
	stop     chan struct{}
	stopOnce sync.Once
}

func newTicker(name string, interval time.Duration, observer Observer, tick func(ctx context.Context) error) *ticker {
	if observer == nil {
		observer = nopObserver{}
	}
	return &ticker{
		name:     name,
		interval: interval,
		tick:     tick,
		observer: observer,
		stop:     make(chan struct{}),
	}
}

// Start blocks; run it on its own goroutine.
func (t *ticker) Start(ctx context.Context) {
	log := logger.Named(ctx, "jobs").With(zap.String("job", t.name))
	if t.interval <= 0 {
		log.Warn("Job disabled")
		return
	}
	log.Info("Job started", zap.Duration("interval", t.interval))

	tk := time.NewTicker(t.interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Job stopped (context cancelled)")
			return
		case <-t.stop:
			log.Info("Job stopped")
			return
		case <-tk.C:
			t.runOnce(ctx)
		}
	}
}

func (t *ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// runOnce tags the run with its own correlation id so the lines the tick
// logs through the usecases can be grouped.
func (t *ticker) runOnce(ctx context.Context) {
	ctx = logger.WithCorrelationID(ctx, utils.GenerateUUIDv7().String())
	log := logger.Named(ctx, "jobs").With(zap.String("job", t.name))
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", zap.Any("panic", r))
		}
	}()
	err := t.tick(ctx)
	t.observer.ObserveJob(t.name, err)
	if err != nil {
		log.Error("Job run failed", zap.Error(err))
	}
}
