package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/donorledger-backend/internal/donations"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
)

type fakeSweeper struct {
	calls int
	n     int
	err   error
}

func (f *fakeSweeper) DeactivateExpired(context.Context) (int, error) {
	f.calls++
	return f.n, f.err
}

type fakeReconciler struct {
	limit   int
	summary donations.ReconcileSummary
	err     error
}

func (f *fakeReconciler) ReconcilePending(_ context.Context, limit int) (donations.ReconcileSummary, error) {
	f.limit = limit
	return f.summary, f.err
}

func TestCampaignLifecycleJob(t *testing.T) {
	sweeper := &fakeSweeper{n: 3}
	job, err := NewCampaignLifecycleJob(CampaignLifecycleJobParams{Logger: logger.Nop(), Campaigns: sweeper})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if job.Name() != "campaign-lifecycle" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}

	sweeper.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error to surface")
	}
}

func TestCampaignLifecycleJobRequiresSweeper(t *testing.T) {
	if _, err := NewCampaignLifecycleJob(CampaignLifecycleJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without campaign service")
	}
}

func TestDonationReconcileJobUsesBatchSize(t *testing.T) {
	reconciler := &fakeReconciler{summary: donations.ReconcileSummary{Checked: 4, Completed: 2, Pending: 2}}
	job, err := NewDonationReconcileJob(DonationReconcileJobParams{Logger: logger.Nop(), Donations: reconciler, BatchSize: 25})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if reconciler.limit != 25 {
		t.Fatalf("expected batch 25, got %d", reconciler.limit)
	}
}

func TestDonationReconcileJobDefaultsBatch(t *testing.T) {
	reconciler := &fakeReconciler{err: errors.New("partial failure")}
	job, err := NewDonationReconcileJob(DonationReconcileJobParams{Logger: logger.Nop(), Donations: reconciler})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if reconciler.limit != defaultReconcileBatch {
		t.Fatalf("expected default batch %d, got %d", defaultReconcileBatch, reconciler.limit)
	}
}
