package credits

import (
	"context"
	"errors"
	"time"

	"mediMeet/domain"
	"mediMeet/pkg/logger"
	"mediMeet/pkg/metrics"
)

// AppointmentCreditCost is the fixed fee moved from patient to doctor on
// every booking.
const AppointmentCreditCost = 2

const txTimeout = 10 * time.Second

// LedgerRepository contract interface. Implementations must apply each method
// as a single atomic unit over the store.
type LedgerRepository interface {
	AllocateCredits(ctx context.Context, userID uint, amount int, packageID string) (domain.User, error)
	TransferCredits(ctx context.Context, patientID, doctorID uint, amount int) (domain.User, error)
	ListByUser(ctx context.Context, userID uint) ([]domain.CreditTransaction, error)
	BalanceAudit(ctx context.Context, userID uint) (int, int, error)
}

// EntitlementProvider answers whether a plan tier is active for an external
// principal.
type EntitlementProvider interface {
	HasPlan(ctx context.Context, externalID, tier string) (bool, error)
}

// ViewInvalidator drops cached pages whose rendered balance went stale.
type ViewInvalidator interface {
	InvalidateViews(ctx context.Context, views ...string) error
}

type CreditsService struct {
	ledgerRepo   LedgerRepository
	entitlements EntitlementProvider
	invalidator  ViewInvalidator
	staleViews   []string
}

func NewCreditsService(ledgerRepo LedgerRepository, entitlements EntitlementProvider, invalidator ViewInvalidator, staleViews []string) *CreditsService {
	return &CreditsService{
		ledgerRepo:   ledgerRepo,
		entitlements: entitlements,
		invalidator:  invalidator,
		staleViews:   staleViews,
	}
}

// AllocateMonthlyCredits grants the user's plan quota at most once per
// calendar month per tier. latestPurchase is the current-month
// CREDIT_PURCHASE row handed over by the identity reconciler; a same-month
// grant for the same tier makes the call a no-op. A tier change mid-month
// re-grants for the new tier.
func (s *CreditsService) AllocateMonthlyCredits(ctx context.Context, user domain.User, latestPurchase *domain.CreditTransaction) (domain.User, error) {
	if user.Role != domain.RolePatient {
		return user, nil
	}

	tier, err := s.resolvePlan(ctx, user.ExternalID)
	if err != nil {
		logger.Error("Failed to resolve plan entitlement", "user_id", user.ID, "error", err)
		return domain.User{}, err
	}
	if tier == "" {
		return user, nil
	}

	if alreadyAllocated(latestPurchase, tier, time.Now()) {
		metrics.AllocationsSkipped.Inc()
		return user, nil
	}

	quota := domain.PlanCredits[tier]

	allocCtx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	updated, err := s.ledgerRepo.AllocateCredits(allocCtx, user.ID, quota, tier)
	if err != nil {
		// A concurrent request for the same user already granted this
		// period. Not a failure, the balance is simply stale for this call.
		if errors.Is(err, domain.ErrAlreadyAllocated) {
			metrics.AllocationsSkipped.Inc()
			return user, nil
		}

		logger.Error("Failed to allocate monthly credits", "user_id", user.ID, "plan", tier, "error", err)
		return domain.User{}, err
	}

	metrics.CreditsAllocated.WithLabelValues(tier).Add(float64(quota))

	s.signalStaleViews()

	return updated, nil
}

// ChargeAppointment settles a booking: the fixed fee moves from patient to
// doctor atomically, with both ledger rows written in the same unit. All
// failure causes come back as typed errors; nothing panics past here.
func (s *CreditsService) ChargeAppointment(ctx context.Context, patientID, doctorID uint) (domain.User, error) {
	chargeCtx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	patient, err := s.ledgerRepo.TransferCredits(chargeCtx, patientID, doctorID, AppointmentCreditCost)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientCredits):
			metrics.SettlementsTotal.WithLabelValues("insufficient_credits").Inc()
		case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrDoctorNotFound):
			metrics.SettlementsTotal.WithLabelValues("not_found").Inc()
		default:
			metrics.SettlementsTotal.WithLabelValues("error").Inc()
			logger.Error("Failed to settle appointment", "patient_id", patientID, "doctor_id", doctorID, "error", err)
		}
		return domain.User{}, err
	}

	metrics.SettlementsTotal.WithLabelValues("success").Inc()

	s.signalStaleViews()

	return patient, nil
}

// Transactions returns a user's ledger history, newest first.
func (s *CreditsService) Transactions(ctx context.Context, userID uint) ([]domain.CreditTransaction, error) {
	rows, err := s.ledgerRepo.ListByUser(ctx, userID)
	if err != nil {
		logger.Error("Failed to list credit transactions", "user_id", userID, "error", err)
		return nil, err
	}

	return rows, nil
}

// AuditBalance compares a user's cached balance with its ledger sum.
func (s *CreditsService) AuditBalance(ctx context.Context, userID uint) (int, int, bool, error) {
	cached, sum, err := s.ledgerRepo.BalanceAudit(ctx, userID)
	if err != nil {
		logger.Error("Failed to audit ledger balance", "user_id", userID, "error", err)
		return 0, 0, false, err
	}

	return cached, sum, cached == sum, nil
}

// resolvePlan walks the tiers highest first and returns the first active one,
// or "" when no plan is active.
func (s *CreditsService) resolvePlan(ctx context.Context, externalID string) (string, error) {
	for _, tier := range domain.PlanPrecedence {
		active, err := s.entitlements.HasPlan(ctx, externalID, tier)
		if err != nil {
			return "", err
		}
		if active {
			return tier, nil
		}
	}

	return "", nil
}

func alreadyAllocated(latest *domain.CreditTransaction, tier string, now time.Time) bool {
	if latest == nil || latest.PackageID == nil {
		return false
	}

	sameMonth := latest.CreatedAt.Year() == now.Year() && latest.CreatedAt.Month() == now.Month()

	return sameMonth && *latest.PackageID == tier
}

// signalStaleViews is fire-and-forget: a failed invalidation is logged and
// never rolls back the committed transaction.
func (s *CreditsService) signalStaleViews() {
	if s.invalidator == nil || len(s.staleViews) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.invalidator.InvalidateViews(ctx, s.staleViews...); err != nil {
		logger.Warn("Failed to invalidate cached views", err)
	}
}
