package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marketloop/settlements-backend/internal/ledger"
	"github.com/marketloop/settlements-backend/internal/wallet"
	dbpkg "github.com/marketloop/settlements-backend/pkg/db"
	"github.com/marketloop/settlements-backend/pkg/db/models"
	"github.com/marketloop/settlements-backend/pkg/enums"
)

func setupCronTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{`
CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  owner_id TEXT,
  order_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'clearing',
  available_at DATETIME,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS wallets (
  owner_id TEXT PRIMARY KEY,
  total_cents INTEGER NOT NULL DEFAULT 0,
  available_cents INTEGER NOT NULL DEFAULT 0,
  pending_cents INTEGER NOT NULL DEFAULT 0,
  paid_out_cents INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedClearingEntry(t *testing.T, db *gorm.DB, owner uuid.UUID, amount int64, availableAt time.Time) *models.LedgerEntry {
	t.Helper()
	entry := &models.LedgerEntry{
		ID:          uuid.New(),
		OwnerID:     &owner,
		OrderID:     uuid.New(),
		Kind:        enums.EntryKindProviderPayout,
		AmountCents: amount,
		Status:      enums.EntryStatusClearing,
		AvailableAt: &availableAt,
	}
	require.NoError(t, db.Create(entry).Error)
	return entry
}

func newClearingJobForTest(t *testing.T, db *gorm.DB, now time.Time) *clearingJob {
	t.Helper()

	projector, err := wallet.NewProjector(ledger.NewRepository(db))
	require.NoError(t, err)

	job, err := NewClearingJob(ClearingJobParams{
		Logger:   newTestLogger(),
		DB:       dbpkg.NewFromConn(db),
		Entries:  ledger.NewRepository(db),
		Wallets:  projector,
		Interval: time.Hour,
	})
	require.NoError(t, err)

	cj := job.(*clearingJob)
	cj.now = func() time.Time { return now }
	return cj
}

func TestClearingJobReleasesMaturedEntries(t *testing.T) {
	db := setupCronTestDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job := newClearingJobForTest(t, db, now)
	ctx := context.Background()

	owner := uuid.New()
	matured := seedClearingEntry(t, db, owner, 8000, now.Add(-time.Hour))
	immature := seedClearingEntry(t, db, owner, 1000, now.Add(48*time.Hour))

	require.NoError(t, job.Run(ctx))

	var got models.LedgerEntry
	require.NoError(t, db.First(&got, "id = ?", matured.ID).Error)
	assert.Equal(t, enums.EntryStatusAvailable, got.Status)

	got = models.LedgerEntry{}
	require.NoError(t, db.First(&got, "id = ?", immature.ID).Error)
	assert.Equal(t, enums.EntryStatusClearing, got.Status)

	var w models.Wallet
	require.NoError(t, db.Where("owner_id = ?", owner).First(&w).Error)
	assert.Equal(t, int64(8000), w.AvailableCents)
	assert.Equal(t, int64(1000), w.PendingCents)
	assert.Equal(t, int64(9000), w.TotalCents)
}

func TestClearingJobIsIdempotent(t *testing.T) {
	db := setupCronTestDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job := newClearingJobForTest(t, db, now)
	ctx := context.Background()

	owner := uuid.New()
	seedClearingEntry(t, db, owner, 5000, now.Add(-time.Minute))

	require.NoError(t, job.Run(ctx))
	require.NoError(t, job.Run(ctx))

	var available []models.LedgerEntry
	require.NoError(t, db.Where("status = ?", enums.EntryStatusAvailable).Find(&available).Error)
	assert.Len(t, available, 1)
}

func TestClearingJobNoMaturedEntries(t *testing.T) {
	db := setupCronTestDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job := newClearingJobForTest(t, db, now)

	seedClearingEntry(t, db, uuid.New(), 5000, now.Add(time.Hour))

	require.NoError(t, job.Run(context.Background()))

	var clearing []models.LedgerEntry
	require.NoError(t, db.Where("status = ?", enums.EntryStatusClearing).Find(&clearing).Error)
	assert.Len(t, clearing, 1)
}
