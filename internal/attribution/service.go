package attribution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/settlements-backend/internal/accounts"
	"github.com/marketloop/settlements-backend/pkg/db"
	"github.com/marketloop/settlements-backend/pkg/db/models"
	"github.com/marketloop/settlements-backend/pkg/enums"
	"github.com/marketloop/settlements-backend/pkg/errors"
	"github.com/marketloop/settlements-backend/pkg/logger"
	"github.com/marketloop/settlements-backend/pkg/outbox"
	"github.com/marketloop/settlements-backend/pkg/outbox/payloads"
)

// SignupInput carries everything known about a new payer at signup time.
// ExplicitCode beats CookieRef when both resolve to a referrer.
type SignupInput struct {
	PayerID      uuid.UUID
	ExplicitCode string
	CookieRef    string
}

// Service resolves who referred a payer and keeps the answer stable.
type Service interface {
	RegisterLead(ctx context.Context, referrerID uuid.UUID, targetRef string) (*models.ReferralLead, error)
	RecordSignup(ctx context.Context, input SignupInput) (*models.Attribution, error)
	ReferrerFor(ctx context.Context, payerID uuid.UUID) (*models.Attribution, error)
	ExpireStaleLeads(ctx context.Context, ttl time.Duration, limit int) (int, error)
}

// Params collects the dependencies for NewService.
type Params struct {
	DB       *db.Client
	Repo     Repository
	Accounts accounts.Repository
	Outbox   *outbox.Service
	Logger   *logger.Logger
}

type service struct {
	db       *db.Client
	repo     Repository
	accounts accounts.Repository
	outbox   *outbox.Service
	logg     *logger.Logger
}

// NewService wires an attribution service with the provided dependencies.
func NewService(p Params) (Service, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("attribution repository required")
	}
	if p.Accounts == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{db: p.DB, repo: p.Repo, accounts: p.Accounts, outbox: p.Outbox, logg: p.Logger}, nil
}

// RegisterLead records a referral link handout. The target ref is unique,
// so replays of the same link return the existing lead untouched.
func (s *service) RegisterLead(ctx context.Context, referrerID uuid.UUID, targetRef string) (*models.ReferralLead, error) {
	if referrerID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "referrer id is required")
	}
	if targetRef == "" {
		return nil, errors.New(errors.CodeValidation, "target ref is required")
	}

	lead := &models.ReferralLead{
		ID:         uuid.New(),
		ReferrerID: referrerID,
		TargetRef:  targetRef,
		Stage:      enums.LeadStageReferred,
	}
	if err := s.repo.CreateLead(ctx, lead); err != nil {
		if db.IsUniqueViolation(err, "ux_referral_leads_target_ref") {
			return s.repo.FindLeadByTargetRef(ctx, targetRef)
		}
		return nil, err
	}
	return lead, nil
}

// RecordSignup resolves the new payer's referrer and stamps it. An explicit
// referral code wins over the cookie trail; a payer that already carries a
// stamp keeps it no matter what this signup claims.
func (s *service) RecordSignup(ctx context.Context, input SignupInput) (*models.Attribution, error) {
	if input.PayerID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "payer id is required")
	}

	var stamped *models.Attribution
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindByPayer(ctx, input.PayerID)
		if err != nil {
			return err
		}
		if existing != nil {
			stamped = existing
			return nil
		}

		referrerID, source, err := s.resolve(ctx, repo, input)
		if err != nil {
			return err
		}
		if referrerID == uuid.Nil {
			return nil
		}

		stamp := &models.Attribution{
			ID:         uuid.New(),
			PayerID:    input.PayerID,
			ReferrerID: referrerID,
			Source:     source,
		}
		if err := repo.Stamp(ctx, stamp); err != nil {
			if db.IsUniqueViolation(err, "ux_attributions_payer") {
				// lost the race; the first writer's stamp stands
				stamped, err = repo.FindByPayer(ctx, input.PayerID)
				return err
			}
			return err
		}

		// every stamped payer gets a funnel record: claim the cookie lead
		// when there is one, otherwise open a lead for the code signup
		var claimed int64
		if input.CookieRef != "" {
			if claimed, err = repo.MarkLeadSignedUp(ctx, input.CookieRef, input.PayerID); err != nil {
				return err
			}
		}
		if claimed == 0 {
			payerID := input.PayerID
			lead := &models.ReferralLead{
				ID:         uuid.New(),
				ReferrerID: referrerID,
				TargetRef:  "code:" + payerID.String(),
				PayerID:    &payerID,
				Stage:      enums.LeadStageSignedUp,
			}
			if err := repo.CreateLead(ctx, lead); err != nil {
				return err
			}
		}

		stamped = stamp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stamped, nil
}

func (s *service) resolve(ctx context.Context, repo Repository, input SignupInput) (uuid.UUID, enums.AttributionSource, error) {
	if input.ExplicitCode != "" {
		account, err := s.accounts.FindActiveByReferralCode(ctx, input.ExplicitCode)
		if err != nil && !errors.HasCode(err, errors.CodeNotFound) {
			return uuid.Nil, "", err
		}
		if account != nil && account.ID != input.PayerID {
			return account.ID, enums.AttributionSourceExplicitCode, nil
		}
	}

	if input.CookieRef != "" {
		lead, err := repo.FindLeadByTargetRef(ctx, input.CookieRef)
		if err != nil {
			return uuid.Nil, "", err
		}
		if lead != nil && lead.Stage == enums.LeadStageReferred && lead.ReferrerID != input.PayerID {
			return lead.ReferrerID, enums.AttributionSourceImplicitCookie, nil
		}
	}

	return uuid.Nil, "", nil
}

// ReferrerFor returns the payer's stamp, or nil when they were never referred.
func (s *service) ReferrerFor(ctx context.Context, payerID uuid.UUID) (*models.Attribution, error) {
	if payerID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "payer id is required")
	}
	return s.repo.FindByPayer(ctx, payerID)
}

// ExpireStaleLeads ages out referred leads that never signed up within ttl.
func (s *service) ExpireStaleLeads(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	if ttl <= 0 {
		return 0, errors.New(errors.CodeValidation, "ttl must be positive")
	}

	expired := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := time.Now().UTC()

		leads, err := repo.ListStaleLeads(ctx, now.Add(-ttl), limit)
		if err != nil {
			return err
		}
		if len(leads) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(leads))
		for _, lead := range leads {
			ids = append(ids, lead.ID)
		}
		n, err := repo.MarkLeadsExpired(ctx, ids)
		if err != nil {
			return err
		}
		expired = int(n)

		for _, lead := range leads {
			event := outbox.DomainEvent{
				EventType:     enums.EventLeadExpired,
				AggregateType: enums.AggregateReferralLead,
				AggregateID:   lead.ID,
				Version:       1,
				Data: payloads.LeadExpiredEvent{
					LeadID:     lead.ID,
					ReferrerID: lead.ReferrerID,
					TargetRef:  lead.TargetRef,
					ExpiredAt:  now,
				},
			}
			if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}
