package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/donorledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	"github.com/angelmondragon/donorledger-backend/pkg/enums"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
	"github.com/angelmondragon/donorledger-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop(), WithSource("donorledger/testnet"))
	donationID := uuid.New()
	occurred := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventDonationCompleted,
			AggregateType: enums.AggregateDonation,
			AggregateID:   donationID,
			OccurredAt:    occurred,
			Data:          payloads.DonationCompletedEvent{DonationID: donationID, TxHash: "ABC"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, donationID, row.AggregateID)
	assert.Nil(t, row.PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, row.ID.String(), envelope.EventID)
	assert.Equal(t, "donorledger/testnet", envelope.Source)
	assert.True(t, envelope.OccurredAt.Equal(occurred))

	var data payloads.DonationCompletedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "ABC", data.TxHash)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop())
	boom := errors.New("state change failed")

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventCampaignDeactivated,
			AggregateType: enums.AggregateCampaign,
			AggregateID:   uuid.New(),
			Data:          payloads.CampaignDeactivatedEvent{Reason: "expired"},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsInvalidEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop())

	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
	assert.Error(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.OutboxEventType("order_created"),
		AggregateType: enums.AggregateDonation,
		AggregateID:   uuid.New(),
	}))
	assert.Error(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventDonationFailed,
		AggregateType: enums.AggregateDonation,
	}))
	assert.Error(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventCampaignDeactivated,
		AggregateType: enums.AggregateDonation,
		AggregateID:   uuid.New(),
	}))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	first := seedEvent(t, conn, time.Now().UTC().Add(-time.Minute))
	second := seedEvent(t, conn, time.Now().UTC())

	var fetched []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, fetched, 2)
	assert.Equal(t, first, fetched[0].ID)

	require.NoError(t, repo.MarkPublishedTx(conn, first))
	require.NoError(t, repo.MarkFailedTx(conn, second, errors.New("pubsub unavailable")))
	require.NoError(t, repo.MarkFailedTx(conn, second, errors.New("pubsub unavailable")))

	var failed models.OutboxEvent
	require.NoError(t, conn.First(&failed, "id = ?", second).Error)
	assert.Equal(t, 2, failed.AttemptCount)
	require.NotNil(t, failed.LastError)

	require.NoError(t, repo.MarkTerminalTx(conn, second, errors.New("gave up"), 3))
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	assert.Empty(t, fetched)
}

func TestDeletePublishedBeforeKeepsRetriedRows(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	old := time.Now().UTC().Add(-40 * 24 * time.Hour)

	clean := seedEvent(t, conn, old)
	retried := seedEvent(t, conn, old)
	fresh := seedEvent(t, conn, time.Now().UTC())
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id IN ?", []uuid.UUID{clean, retried}).Update("published_at", old).Error)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", retried).Update("attempt_count", 6).Error)
	require.NoError(t, repo.MarkPublishedTx(conn, fresh))

	deleted, err := repo.DeletePublishedBefore(context.Background(), conn, time.Now().UTC().Add(-30*24*time.Hour), 5)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Order("created_at").Pluck("id", &remaining).Error)
	assert.ElementsMatch(t, []uuid.UUID{retried, fresh}, remaining)
}

func TestDLQInsertTruncatesOnRuneBoundary(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	msg := strings.Repeat("a", maxDLQErrorLen-1) + "ñandú"

	require.NoError(t, repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventDonationFailed,
		AggregateType: enums.AggregateDonation,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
	}))

	var stored models.OutboxDLQ
	require.NoError(t, conn.First(&stored).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.LessOrEqual(t, len(*stored.ErrorMessage), maxDLQErrorLen)
	assert.True(t, utf8.ValidString(*stored.ErrorMessage))
	assert.Error(t, repo.InsertTx(nil, models.OutboxDLQ{}))
}

func seedEvent(t *testing.T, conn *gorm.DB, createdAt time.Time) uuid.UUID {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventDonationCompleted,
		AggregateType: enums.AggregateDonation,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		CreatedAt:     createdAt,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row.ID
}
