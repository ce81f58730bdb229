package enums

import "testing"

func TestDonationStatusParsing(t *testing.T) {
	for _, raw := range []string{"pending", "completed", "failed"} {
		status, err := ParseDonationStatus(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if !status.IsValid() {
			t.Fatalf("expected %q to be valid", raw)
		}
	}
	if _, err := ParseDonationStatus("refunded"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestDonationStatusTerminal(t *testing.T) {
	if DonationStatusPending.IsTerminal() {
		t.Fatal("pending must not be terminal")
	}
	if !DonationStatusCompleted.IsTerminal() || !DonationStatusFailed.IsTerminal() {
		t.Fatal("completed and failed are terminal")
	}
}

func TestOutboxEnums(t *testing.T) {
	if _, err := ParseOutboxEventType("donation_completed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if OutboxEventType("order_created").IsValid() {
		t.Fatal("unexpected valid event type")
	}
	if _, err := ParseOutboxAggregateType("campaign"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if EventDonationFailed.Aggregate() != AggregateDonation {
		t.Fatal("donation_failed belongs to donations")
	}
	if EventCampaignDeactivated.Aggregate() != AggregateCampaign {
		t.Fatal("campaign_deactivated belongs to campaigns")
	}
	if OutboxEventType("order_created").Aggregate() != "" {
		t.Fatal("unknown events have no aggregate")
	}
	if _, err := ParseOutboxDLQErrorReason("max_attempts"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseOutboxDLQErrorReason("timeout"); err == nil {
		t.Fatal("expected unknown dlq reason to fail")
	}
}

func TestLedgerTxStatus(t *testing.T) {
	if _, err := ParseLedgerTxStatus("completed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if LedgerTxStatus("validated").IsValid() {
		t.Fatal("unexpected valid status")
	}
	if !LedgerOperationEscrowFinish.IsValid() {
		t.Fatal("escrow_finish should be valid")
	}
}
