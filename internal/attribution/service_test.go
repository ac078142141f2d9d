package attribution

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marketloop/settlements-backend/internal/accounts"
	dbpkg "github.com/marketloop/settlements-backend/pkg/db"
	"github.com/marketloop/settlements-backend/pkg/db/models"
	"github.com/marketloop/settlements-backend/pkg/enums"
	"github.com/marketloop/settlements-backend/pkg/outbox"
)

func setupAttributionTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{`
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  display_name TEXT NOT NULL,
  referral_code TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  trust_tier TEXT NOT NULL DEFAULT 'new',
  payout_destination TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS attributions (
  id TEXT PRIMARY KEY,
  payer_id TEXT NOT NULL UNIQUE,
  referrer_id TEXT NOT NULL,
  source TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS referral_leads (
  id TEXT PRIMARY KEY,
  referrer_id TEXT NOT NULL,
  target_ref TEXT NOT NULL UNIQUE,
  payer_id TEXT,
  stage TEXT NOT NULL DEFAULT 'referred',
  converted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newAttributionService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(Params{
		DB:       dbpkg.NewFromConn(db),
		Repo:     NewRepository(db),
		Accounts: accounts.NewRepository(db),
		Outbox:   outbox.NewService(outbox.NewRepository(db), nil),
	})
	require.NoError(t, err)
	return svc
}

func seedReferrer(t *testing.T, db *gorm.DB, code string, active bool) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:           uuid.New(),
		DisplayName:  "Referrer " + code,
		ReferralCode: &code,
		Active:       active,
		TrustTier:    enums.TrustTierStandard,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func TestRecordSignupExplicitCodeBeatsCookie(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newAttributionService(t, db)
	ctx := context.Background()

	codeOwner := seedReferrer(t, db, "CODE10", true)
	cookieOwner := seedReferrer(t, db, "OTHER", true)

	_, err := svc.RegisterLead(ctx, cookieOwner.ID, "cookie-token-1")
	require.NoError(t, err)

	payerID := uuid.New()
	stamp, err := svc.RecordSignup(ctx, SignupInput{
		PayerID:      payerID,
		ExplicitCode: "CODE10",
		CookieRef:    "cookie-token-1",
	})
	require.NoError(t, err)
	require.NotNil(t, stamp)
	assert.Equal(t, codeOwner.ID, stamp.ReferrerID)
	assert.Equal(t, enums.AttributionSourceExplicitCode, stamp.Source)
}

func TestRecordSignupFallsBackToCookie(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newAttributionService(t, db)
	ctx := context.Background()

	cookieOwner := seedReferrer(t, db, "COOKIE", true)
	_, err := svc.RegisterLead(ctx, cookieOwner.ID, "cookie-token-2")
	require.NoError(t, err)

	payerID := uuid.New()
	stamp, err := svc.RecordSignup(ctx, SignupInput{
		PayerID:      payerID,
		ExplicitCode: "UNKNOWN_CODE",
		CookieRef:    "cookie-token-2",
	})
	require.NoError(t, err)
	require.NotNil(t, stamp)
	assert.Equal(t, cookieOwner.ID, stamp.ReferrerID)
	assert.Equal(t, enums.AttributionSourceImplicitCookie, stamp.Source)

	// the lead advanced alongside the stamp
	var lead models.ReferralLead
	require.NoError(t, db.First(&lead, "target_ref = ?", "cookie-token-2").Error)
	assert.Equal(t, enums.LeadStageSignedUp, lead.Stage)
	require.NotNil(t, lead.PayerID)
	assert.Equal(t, payerID, *lead.PayerID)
}

func TestRecordSignupExplicitCodeOpensLead(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newAttributionService(t, db)
	ctx := context.Background()

	codeOwner := seedReferrer(t, db, "CODE20", true)

	payerID := uuid.New()
	stamp, err := svc.RecordSignup(ctx, SignupInput{PayerID: payerID, ExplicitCode: "CODE20"})
	require.NoError(t, err)
	require.NotNil(t, stamp)

	// a code signup with no cookie trail still lands in the funnel
	var lead models.ReferralLead
	require.NoError(t, db.First(&lead, "payer_id = ?", payerID).Error)
	assert.Equal(t, codeOwner.ID, lead.ReferrerID)
	assert.Equal(t, enums.LeadStageSignedUp, lead.Stage)

	// so settlement can advance it to converted
	n, err := NewRepository(db).MarkLeadConverted(ctx, payerID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecordSignupWithoutReferrer(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newAttributionService(t, db)

	stamp, err := svc.RecordSignup(context.Background(), SignupInput{PayerID: uuid.New()})
	require.NoError(t, err)
	assert.Nil(t, stamp)
}

func TestRecordSignupFirstWriterWins(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newAttributionService(t, db)
	ctx := context.Background()

	first := seedReferrer(t, db, "FIRST", true)
	seedReferrer(t, db, "SECOND", true)

	payerID := uuid.New()
	stamp, err := svc.RecordSignup(ctx, SignupInput{PayerID: payerID, ExplicitCode: "FIRST"})
	require.NoError(t, err)
	require.NotNil(t, stamp)
	assert.Equal(t, first.ID, stamp.ReferrerID)

	// a later signup replay naming another referrer changes nothing
	again, err := svc.RecordSignup(ctx, SignupInput{PayerID: payerID, ExplicitCode: "SECOND"})
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ReferrerID)

	var count int64
	require.NoError(t, db.Model(&models.Attribution{}).Where("payer_id = ?", payerID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordSignupIgnoresInactiveAndSelfReferral(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newAttributionService(t, db)
	ctx := context.Background()

	inactive := seedReferrer(t, db, "RETIRED", false)
	_ = inactive

	stamp, err := svc.RecordSignup(ctx, SignupInput{PayerID: uuid.New(), ExplicitCode: "RETIRED"})
	require.NoError(t, err)
	assert.Nil(t, stamp)

	self := seedReferrer(t, db, "MYSELF", true)
	stamp, err = svc.RecordSignup(ctx, SignupInput{PayerID: self.ID, ExplicitCode: "MYSELF"})
	require.NoError(t, err)
	assert.Nil(t, stamp)
}

func TestRegisterLeadIsIdempotentPerTargetRef(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newAttributionService(t, db)
	ctx := context.Background()

	referrer := seedReferrer(t, db, "LEAD", true)

	first, err := svc.RegisterLead(ctx, referrer.ID, "token-xyz")
	require.NoError(t, err)
	second, err := svc.RegisterLead(ctx, referrer.ID, "token-xyz")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.ReferralLead{}).Where("target_ref = ?", "token-xyz").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestExpireStaleLeads(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newAttributionService(t, db)
	ctx := context.Background()

	referrer := seedReferrer(t, db, "STALE", true)

	old := &models.ReferralLead{
		ID:         uuid.New(),
		ReferrerID: referrer.ID,
		TargetRef:  "old-token",
		Stage:      enums.LeadStageReferred,
		CreatedAt:  time.Now().UTC().Add(-40 * 24 * time.Hour),
	}
	fresh := &models.ReferralLead{
		ID:         uuid.New(),
		ReferrerID: referrer.ID,
		TargetRef:  "fresh-token",
		Stage:      enums.LeadStageReferred,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, db.Create(old).Error)
	require.NoError(t, db.Create(fresh).Error)

	expired, err := svc.ExpireStaleLeads(ctx, 30*24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	var reloaded models.ReferralLead
	require.NoError(t, db.First(&reloaded, "id = ?", old.ID).Error)
	assert.Equal(t, enums.LeadStageExpired, reloaded.Stage)
	reloaded = models.ReferralLead{}
	require.NoError(t, db.First(&reloaded, "id = ?", fresh.ID).Error)
	assert.Equal(t, enums.LeadStageReferred, reloaded.Stage)

	// one expiry event per lead, replay safe
	var events int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventLeadExpired).
		Count(&events).Error)
	assert.Equal(t, int64(1), events)

	_, err = svc.ExpireStaleLeads(ctx, 30*24*time.Hour, 100)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventLeadExpired).
		Count(&events).Error)
	assert.Equal(t, int64(1), events)
}
