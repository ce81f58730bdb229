package campaigns

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/donorledger-backend/internal/npos"
	"github.com/angelmondragon/donorledger-backend/pkg/db"
	"github.com/angelmondragon/donorledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	"github.com/angelmondragon/donorledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/donorledger-backend/pkg/errors"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
	"github.com/angelmondragon/donorledger-backend/pkg/outbox"
	"github.com/angelmondragon/donorledger-backend/pkg/pagination"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	conn *gorm.DB
	svc  Service
	npo  *models.NPO
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	npoRepo := npos.NewRepository(conn)
	npo := &models.NPO{Name: "Shelter", Email: "s@x.org", LedgerAddress: "rPT1Sjq2YGrBMTttX4GZHjKu9dyfzbpAYe"}
	require.NoError(t, npoRepo.Create(context.Background(), npo))

	svc, err := NewService(
		NewRepository(conn),
		npoRepo,
		db.NewFromConn(conn),
		outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		logger.Nop(),
		func() time.Time { return testNow },
	)
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc, npo: npo}
}

func (f fixture) reloadNPO(t *testing.T) models.NPO {
	t.Helper()
	var npo models.NPO
	require.NoError(t, f.conn.First(&npo, "id = ?", f.npo.ID).Error)
	return npo
}

func (f fixture) outboxCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func timePtr(t time.Time) *time.Time { return &t }

func TestCreateCampaignIncrementsNPOCount(t *testing.T) {
	f := newFixture(t)
	campaign, err := f.svc.Create(context.Background(), CreateInput{
		NPOID:      f.npo.ID,
		Title:      "Winter coats",
		GoalAmount: decimal.NewFromInt(1000),
		EndDate:    timePtr(testNow.Add(48 * time.Hour)),
	})
	require.NoError(t, err)
	assert.True(t, campaign.IsActive)
	assert.True(t, campaign.CurrentAmount.IsZero())
	assert.True(t, testNow.Equal(campaign.StartDate))
	assert.Equal(t, 1, f.reloadNPO(t).TotalCampaigns)
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{NPOID: f.npo.ID, Title: "", GoalAmount: decimal.NewFromInt(1)})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, CreateInput{NPOID: f.npo.ID, Title: "T", GoalAmount: decimal.Zero})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, CreateInput{NPOID: f.npo.ID, Title: "T", GoalAmount: decimal.NewFromInt(1), EndDate: timePtr(testNow.Add(-time.Hour))})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, CreateInput{NPOID: uuid.New(), Title: "T", GoalAmount: decimal.NewFromInt(1)})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteCampaignDecrementsNPOCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	campaign, err := f.svc.Create(ctx, CreateInput{NPOID: f.npo.ID, Title: "T", GoalAmount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, campaign.ID))
	assert.Equal(t, 0, f.reloadNPO(t).TotalCampaigns)
	assert.True(t, pkgerrors.HasCode(f.svc.Delete(ctx, campaign.ID), pkgerrors.CodeNotFound))
}

func TestUpdateCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	campaign, err := f.svc.Create(ctx, CreateInput{NPOID: f.npo.ID, Title: "T", GoalAmount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	goal := decimal.NewFromInt(250)
	title := "Renamed"
	updated, err := f.svc.Update(ctx, campaign.ID, CampaignUpdate{Title: &title, GoalAmount: &goal})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.True(t, updated.GoalAmount.Equal(goal))

	_, err = f.svc.Update(ctx, campaign.ID, CampaignUpdate{EndDate: timePtr(testNow.Add(-24 * time.Hour))})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestDeactivateExpiredIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := testNow.Add(-72 * time.Hour)

	expired := &models.Campaign{NPOID: f.npo.ID, Title: "Old", GoalAmount: decimal.NewFromInt(5), StartDate: past, EndDate: timePtr(testNow.Add(-time.Hour)), IsActive: true}
	open := &models.Campaign{NPOID: f.npo.ID, Title: "Open", GoalAmount: decimal.NewFromInt(5), StartDate: past, EndDate: timePtr(testNow.Add(time.Hour)), IsActive: true}
	endless := &models.Campaign{NPOID: f.npo.ID, Title: "Endless", GoalAmount: decimal.NewFromInt(5), StartDate: past, IsActive: true}
	for _, c := range []*models.Campaign{expired, open, endless} {
		require.NoError(t, f.conn.Create(c).Error)
	}

	n, err := f.svc.DeactivateExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.DeactivateExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := f.svc.Get(ctx, expired.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	for _, id := range []uuid.UUID{open.ID, endless.ID} {
		got, err := f.svc.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.IsActive)
	}
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventCampaignDeactivated))
}

func TestDeactivateManually(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	campaign, err := f.svc.Create(ctx, CreateInput{NPOID: f.npo.ID, Title: "T", GoalAmount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	got, err := f.svc.Deactivate(ctx, campaign.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = f.svc.Deactivate(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventCampaignDeactivated))
}

func TestListActiveCampaigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := testNow.Add(-72 * time.Hour)
	require.NoError(t, f.conn.Create(&models.Campaign{NPOID: f.npo.ID, Title: "Live", GoalAmount: decimal.NewFromInt(5), StartDate: past, IsActive: true}).Error)
	require.NoError(t, f.conn.Create(&models.Campaign{NPOID: f.npo.ID, Title: "Future", GoalAmount: decimal.NewFromInt(5), StartDate: testNow.Add(time.Hour), IsActive: true}).Error)
	require.NoError(t, f.conn.Create(&models.Campaign{NPOID: f.npo.ID, Title: "Done", GoalAmount: decimal.NewFromInt(5), StartDate: past, EndDate: timePtr(testNow.Add(-time.Hour)), IsActive: true}).Error)

	all, err := f.svc.List(ctx, ListFilters{NPOID: &f.npo.ID}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 3)

	active, err := f.svc.List(ctx, ListFilters{NPOID: &f.npo.ID, ActiveAt: &testNow}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, active.Items, 1)
	assert.Equal(t, "Live", active.Items[0].Title)
}
