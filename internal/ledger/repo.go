package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/settlements-backend/pkg/db/models"
	"github.com/marketloop/settlements-backend/pkg/enums"
)

// OwnerAvailable is one owner's current available balance.
type OwnerAvailable struct {
	OwnerID    uuid.UUID `gorm:"column:owner_id"`
	TotalCents int64     `gorm:"column:total_cents"`
}

// StatusSums groups an owner's entry amounts by lifecycle status.
type StatusSums struct {
	ClearingCents  int64
	AvailableCents int64
	BatchingCents  int64
	PaidOutCents   int64
}

// Repository manages persistence for ledger entries. Amounts are immutable
// once written; only Status and AvailableAt ever change, and every status
// update is conditional on the expected prior status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LedgerEntry) error
	CreateAll(ctx context.Context, entries []*models.LedgerEntry) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	ListMatureClearing(ctx context.Context, now time.Time, limit int) ([]models.LedgerEntry, error)
	UpdateStatus(ctx context.Context, ids []uuid.UUID, from, to enums.EntryStatus) (int64, error)
	AvailableTotalsByOwner(ctx context.Context, minCents int64) ([]OwnerAvailable, error)
	ListAvailableByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.LedgerEntry, error)
	SumsByOwner(ctx context.Context, ownerID uuid.UUID) (StatusSums, error)
	OwnerIDsWithEntries(ctx context.Context) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) CreateAll(ctx context.Context, entries []*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(entries).Error
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListMatureClearing returns clearing entries whose hold window has passed.
func (r *repository) ListMatureClearing(ctx context.Context, now time.Time, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	q := r.db.WithContext(ctx).
		Where("status = ? AND available_at IS NOT NULL AND available_at <= ?", enums.EntryStatusClearing, now).
		Order("available_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// UpdateStatus flips the given entries from one status to another and
// reports how many rows actually matched. Callers that require all-or-none
// semantics compare the count against len(ids) inside their transaction.
func (r *repository) UpdateStatus(ctx context.Context, ids []uuid.UUID, from, to enums.EntryStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("id IN ? AND status = ?", ids, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

// AvailableTotalsByOwner sums each owner's payable balance. Debit entries
// record the payer's charge and are never paid out, so they stay out of
// the totals.
func (r *repository) AvailableTotalsByOwner(ctx context.Context, minCents int64) ([]OwnerAvailable, error) {
	var totals []OwnerAvailable
	err := r.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Select("owner_id, SUM(amount_cents) AS total_cents").
		Where("status = ? AND owner_id IS NOT NULL AND kind <> ?", enums.EntryStatusAvailable, enums.EntryKindDebit).
		Group("owner_id").
		Having("SUM(amount_cents) >= ?", minCents).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *repository) ListAvailableByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND status = ? AND kind <> ?", ownerID, enums.EntryStatusAvailable, enums.EntryKindDebit).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SumsByOwner(ctx context.Context, ownerID uuid.UUID) (StatusSums, error) {
	rows := []struct {
		Status enums.EntryStatus `gorm:"column:status"`
		Total  int64             `gorm:"column:total"`
	}{}
	err := r.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Select("status, SUM(amount_cents) AS total").
		Where("owner_id = ?", ownerID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return StatusSums{}, err
	}

	var sums StatusSums
	for _, row := range rows {
		switch row.Status {
		case enums.EntryStatusClearing:
			sums.ClearingCents = row.Total
		case enums.EntryStatusAvailable:
			sums.AvailableCents = row.Total
		case enums.EntryStatusBatching:
			sums.BatchingCents = row.Total
		case enums.EntryStatusPaidOut:
			sums.PaidOutCents = row.Total
		}
	}
	return sums, nil
}

func (r *repository) OwnerIDsWithEntries(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Distinct("owner_id").
		Where("owner_id IS NOT NULL").
		Pluck("owner_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
