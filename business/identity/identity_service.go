package identity

import (
	"context"
	"errors"

	"mediMeet/domain"
	"mediMeet/pkg/logger"
)

// UserRepository contract interface
type UserRepository interface {
	FindByExternalID(ctx context.Context, externalID string) (domain.User, *domain.CreditTransaction, error)
	CreateWithLedgerMarker(ctx context.Context, user *domain.User) error
}

type IdentityService struct {
	userRepo UserRepository
}

func NewIdentityService(userRepo UserRepository) *IdentityService {
	return &IdentityService{
		userRepo: userRepo,
	}
}

// Reconcile maps an external principal to the internal user record, creating
// it on first sight. The returned transaction is the user's most recent
// CREDIT_PURCHASE of the current month, handed to the allocator so it skips a
// second lookup.
func (s *IdentityService) Reconcile(ctx context.Context, principal domain.Principal) (domain.User, *domain.CreditTransaction, error) {
	if principal.ExternalID == "" {
		return domain.User{}, nil, domain.ErrNoPrincipal
	}

	user, latest, err := s.userRepo.FindByExternalID(ctx, principal.ExternalID)
	if err == nil {
		return user, latest, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		logger.Error("Failed to look up user by external id", err)
		return domain.User{}, nil, err
	}

	newUser := domain.User{
		ExternalID: principal.ExternalID,
		FullName:   principal.FullName(),
		Email:      principal.Email,
		ImageURL:   principal.ImageURL,
		Role:       domain.RoleUnassigned,
		Credits:    0,
	}

	err = s.userRepo.CreateWithLedgerMarker(ctx, &newUser)
	if err != nil {
		// Another request for the same principal won the insert. Re-fetch
		// and use the existing row.
		if errors.Is(err, domain.ErrDuplicateUser) {
			user, latest, err := s.userRepo.FindByExternalID(ctx, principal.ExternalID)
			if err != nil {
				logger.Error("Failed to re-fetch user after duplicate create", err)
				return domain.User{}, nil, err
			}
			return user, latest, nil
		}

		logger.Error("Failed to create user", err)
		return domain.User{}, nil, err
	}

	user, latest, err = s.userRepo.FindByExternalID(ctx, principal.ExternalID)
	if err != nil {
		logger.Error("Failed to load created user", err)
		return domain.User{}, nil, err
	}

	return user, latest, nil
}
