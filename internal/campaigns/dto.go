package campaigns

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CampaignUpdate lists the campaign fields a caller may change. The running
// total is owned by donation settlement and cannot be set here.
type CampaignUpdate struct {
	Title       *string
	Description *string
	GoalAmount  *decimal.Decimal
	StartDate   *time.Time
	EndDate     *time.Time
	IsActive    *bool
}

func (u CampaignUpdate) columns() map[string]any {
	values := map[string]any{}
	if u.Title != nil {
		values["title"] = *u.Title
	}
	if u.Description != nil {
		values["description"] = *u.Description
	}
	if u.GoalAmount != nil {
		values["goal_amount"] = *u.GoalAmount
	}
	if u.StartDate != nil {
		values["start_date"] = u.StartDate.UTC()
	}
	if u.EndDate != nil {
		values["end_date"] = u.EndDate.UTC()
	}
	if u.IsActive != nil {
		values["is_active"] = *u.IsActive
	}
	return values
}

type CreateInput struct {
	NPOID       uuid.UUID
	Title       string
	Description *string
	GoalAmount  decimal.Decimal
	StartDate   *time.Time
	EndDate     *time.Time
}

// Deactivation reasons carried on campaign_deactivated events.
const (
	ReasonEnded  = "ended"
	ReasonManual = "manual"
)
