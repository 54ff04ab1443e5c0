package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/atriumhq/atrium/internal/store"
	"github.com/atriumhq/atrium/pkg/models"
)

// Provisioner materializes a user record for a verified Principal.
// The very first user provisioned in a deployment becomes admin; every
// later user starts with the standard role.
type Provisioner struct {
	store store.UserStore
}

func NewProvisioner(s store.UserStore) *Provisioner {
	return &Provisioner{store: s}
}

// GetOrCreate returns the stored user for the principal, creating the
// record on first login. Existing users get their last-login stamp
// refreshed; their role is never changed here.
func (p *Provisioner) GetOrCreate(ctx context.Context, principal *Principal) (*models.User, error) {
	user, err := p.store.GetUser(ctx, principal.Subject)
	if err == nil {
		if err := p.store.TouchLastLogin(ctx, user.ID); err != nil {
			log.Warn().Err(err).Str("user", user.ID).Msg("touch last login failed")
		}
		return user, nil
	}
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	role := models.RoleStandard
	claimed, err := p.store.ClaimBootstrapAdmin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap claim: %w", err)
	}
	if claimed {
		role = models.RoleAdmin
	}

	user = &models.User{
		ID:          principal.Subject,
		Email:       principal.Email,
		Role:        role,
		ExternalID:  principal.Subject,
		DisplayName: principal.DisplayName,
		PhotoURL:    principal.PhotoURL,
	}
	if err := p.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	log.Info().Str("user", user.ID).Str("role", string(user.Role)).Msg("provisioned user")
	return user, nil
}
