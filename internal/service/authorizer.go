package service

import (
	"context"

	"vallenar/internal/apierror"
	"vallenar/internal/infra"
	"vallenar/internal/model"
	"vallenar/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Authorization identifies the user whose PIN approved a protected action.
type Authorization struct {
	UserID uuid.UUID
	Name   string
	Role   model.Role
}

// Authorizer resolves discount tiers and validates supervisor PINs.
type Authorizer interface {
	// RequiredTier maps a percentage onto the band that must approve it.
	RequiredTier(percent decimal.Decimal) (model.Tier, error)
	// ValidatePin returns the first active user at or above tier whose PIN matches.
	ValidatePin(ctx context.Context, pin string, tier model.Tier) (*Authorization, error)
}

var (
	bandNone       = decimal.NewFromInt(10)
	bandSupervisor = decimal.NewFromInt(20)
	bandGerente    = decimal.NewFromInt(30)
	bandAdmin      = decimal.NewFromInt(50)
)

type authorizer struct {
	users   repository.UserRepository
	limiter infra.PinLimiter
}

func NewAuthorizer(users repository.UserRepository, limiter infra.PinLimiter) Authorizer {
	return &authorizer{users: users, limiter: limiter}
}

// ResolveRequiredTier is the pure band lookup behind Authorizer.RequiredTier.
func ResolveRequiredTier(percent decimal.Decimal) (model.Tier, error) {
	switch {
	case percent.IsNegative():
		return model.TierNone, apierror.Validation("El porcentaje no puede ser negativo")
	case percent.LessThanOrEqual(bandNone):
		return model.TierNone, nil
	case percent.LessThanOrEqual(bandSupervisor):
		return model.TierSupervisor, nil
	case percent.LessThanOrEqual(bandGerente):
		return model.TierGerente, nil
	case percent.LessThanOrEqual(bandAdmin):
		return model.TierAdministrador, nil
	default:
		return model.TierNone, apierror.Validation("El porcentaje supera el máximo permitido (50%)")
	}
}

func (a *authorizer) RequiredTier(percent decimal.Decimal) (model.Tier, error) {
	return ResolveRequiredTier(percent)
}

func (a *authorizer) ValidatePin(ctx context.Context, pin string, tier model.Tier) (*Authorization, error) {
	if tier == model.TierNone {
		return nil, nil
	}
	if pin == "" {
		infra.PinAttempts.WithLabelValues("missing").Inc()
		return nil, authorizationRequired(tier)
	}

	candidates, err := a.users.ListActiveByRoles(ctx, model.RolesAtLeast(tier.MinRole()))
	if err != nil {
		return nil, apierror.Infrastructure(err)
	}

	for _, u := range candidates {
		if u.AccessPin == nil || !u.Role.AtLeast(tier.MinRole()) {
			continue
		}
		allowed, err := a.limiter.Allow(ctx, u.ID)
		if err != nil {
			return nil, apierror.Infrastructure(err)
		}
		if !allowed {
			continue
		}
		if PinMatches(*u.AccessPin, pin) {
			if err := a.limiter.Reset(ctx, u.ID); err != nil {
				log.Warn().Err(err).Str("user_id", u.ID.String()).Msg("pin limiter reset failed")
			}
			infra.PinAttempts.WithLabelValues("granted").Inc()
			return &Authorization{UserID: u.ID, Name: u.Name, Role: u.Role}, nil
		}
		if err := a.limiter.RecordFailure(ctx, u.ID); err != nil {
			return nil, apierror.Infrastructure(err)
		}
	}

	infra.PinAttempts.WithLabelValues("denied").Inc()
	return nil, ErrAuthorizationDenied
}
