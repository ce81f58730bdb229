package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/donorledger-backend/pkg/logger"
)

type campaignSweeper interface {
	DeactivateExpired(ctx context.Context) (int, error)
}

type CampaignLifecycleJobParams struct {
	Logger    *logger.Logger
	Campaigns campaignSweeper
}

// NewCampaignLifecycleJob turns off campaigns whose end date has passed.
func NewCampaignLifecycleJob(params CampaignLifecycleJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Campaigns == nil {
		return nil, fmt.Errorf("campaign service required")
	}
	return &campaignLifecycleJob{logg: params.Logger, campaigns: params.Campaigns}, nil
}

type campaignLifecycleJob struct {
	logg      *logger.Logger
	campaigns campaignSweeper
}

func (j *campaignLifecycleJob) Name() string { return "campaign-lifecycle" }

func (j *campaignLifecycleJob) Run(ctx context.Context) error {
	deactivated, err := j.campaigns.DeactivateExpired(ctx)
	logCtx := j.logg.WithField(ctx, "campaigns_deactivated", deactivated)
	if err != nil {
		return fmt.Errorf("campaign lifecycle: %w", err)
	}
	j.logg.Info(logCtx, "campaign lifecycle sweep complete")
	return nil
}
