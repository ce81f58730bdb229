package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/donorledger-backend/internal/donations"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
)

const defaultReconcileBatch = 100

type pendingReconciler interface {
	ReconcilePending(ctx context.Context, limit int) (donations.ReconcileSummary, error)
}

type DonationReconcileJobParams struct {
	Logger    *logger.Logger
	Donations pendingReconciler
	BatchSize int
}

// NewDonationReconcileJob polls the ledger for pending donations that were
// submitted but never read back.
func NewDonationReconcileJob(params DonationReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Donations == nil {
		return nil, fmt.Errorf("donation service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &donationReconcileJob{logg: params.Logger, donations: params.Donations, batch: batch}, nil
}

type donationReconcileJob struct {
	logg      *logger.Logger
	donations pendingReconciler
	batch     int
}

func (j *donationReconcileJob) Name() string { return "donation-reconcile" }

func (j *donationReconcileJob) Run(ctx context.Context) error {
	summary, err := j.donations.ReconcilePending(ctx, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"batch_size": j.batch,
		"checked":    summary.Checked,
		"completed":  summary.Completed,
		"failed":     summary.Failed,
		"pending":    summary.Pending,
	})
	if err != nil {
		return fmt.Errorf("donation reconcile: %w", err)
	}
	j.logg.Info(logCtx, "donation reconcile sweep complete")
	return nil
}
