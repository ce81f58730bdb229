package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateDonation OutboxAggregateType = "donation"
	AggregateCampaign OutboxAggregateType = "campaign"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateDonation, AggregateCampaign:
		return true
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres. Every event type
// belongs to exactly one aggregate.
type OutboxEventType string

const (
	EventDonationCompleted   OutboxEventType = "donation_completed"
	EventDonationFailed      OutboxEventType = "donation_failed"
	EventCampaignDeactivated OutboxEventType = "campaign_deactivated"
)

var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventDonationCompleted:   AggregateDonation,
	EventDonationFailed:      AggregateDonation,
	EventCampaignDeactivated: AggregateCampaign,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate the event describes, or "" for unknown types.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
