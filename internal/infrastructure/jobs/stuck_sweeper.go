package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"payroute.backend/internal/usecases"
	"payroute.backend/pkg/logger"
)

const StuckSweeperName = "stuck_transaction_sweeper"

// StuckReconciler settles transactions left in processing
type StuckReconciler interface {
	ReconcileStuck(ctx context.Context, olderThan time.Time, limit int) (usecases.ReconcileReport, error)
}

// StuckTransactionSweeper periodically asks gateways about transactions that
// stayed in processing for longer than StuckAfter, and fails the ones that
// never reached a gateway.
type StuckTransactionSweeper struct {
	*ticker
	reconciler StuckReconciler
	stuckAfter time.Duration
	batch      int
	now        func() time.Time
}

func NewStuckTransactionSweeper(reconciler StuckReconciler, interval, stuckAfter time.Duration, batch int, observer Observer) *StuckTransactionSweeper {
	j := &StuckTransactionSweeper{
		reconciler: reconciler,
		stuckAfter: stuckAfter,
		batch:      batch,
		now:        time.Now,
	}
	j.ticker = newTicker(StuckSweeperName, interval, observer, j.sweep)
	return j
}

func (j *StuckTransactionSweeper) sweep(ctx context.Context) error {
	olderThan := j.now().UTC().Add(-j.stuckAfter)
	report, err := j.reconciler.ReconcileStuck(ctx, olderThan, j.batch)
	if err != nil {
		return err
	}
	if report.Checked == 0 {
		return nil
	}
	logger.Info(ctx, "Stuck transactions swept",
		zap.Int("checked", report.Checked),
		zap.Int("settled", report.Settled),
		zap.Int("abandoned", report.Abandoned),
		zap.Int("errors", report.Errors),
	)
	if report.Errors > 0 {
		return fmt.Errorf("%d of %d stuck transactions could not be reconciled", report.Errors, report.Checked)
	}
	return nil
}
