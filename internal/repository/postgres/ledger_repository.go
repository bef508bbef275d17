package postgres

import (
	"context"
	"errors"
	"time"

	"mediMeet/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository owns every mutation of users.credits and every ledger
// insert. No other code path writes either.
type LedgerRepository struct {
	DB *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{DB: db}
}

// AllocateCredits grants a plan's monthly quota: one CREDIT_PURCHASE row plus
// a balance increment, committed together. The user row is locked and the
// idempotency key (user, current month, package) is re-checked under the lock
// so two concurrent grants cannot both commit; the loser gets
// domain.ErrAlreadyAllocated.
func (r *LedgerRepository) AllocateCredits(ctx context.Context, userID uint, amount int, packageID string) (domain.User, error) {
	var updated domain.User

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user domain.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}

		now := time.Now()
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

		var granted int64
		err = tx.Model(&domain.CreditTransaction{}).
			Where("user_id = ? AND type = ? AND package_id = ? AND created_at >= ?",
				userID, domain.TxTypeCreditPurchase, packageID, monthStart).
			Count(&granted).Error
		if err != nil {
			return err
		}
		if granted > 0 {
			return domain.ErrAlreadyAllocated
		}

		row := domain.CreditTransaction{
			ReferenceID: uuid.NewString(),
			UserID:      userID,
			Amount:      amount,
			Type:        domain.TxTypeCreditPurchase,
			PackageID:   &packageID,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		err = tx.Model(&domain.User{}).Where("id = ?", userID).
			UpdateColumn("credits", gorm.Expr("credits + ?", amount)).Error
		if err != nil {
			return err
		}

		return tx.First(&updated, userID).Error
	})
	if err != nil {
		return domain.User{}, err
	}

	return updated, nil
}

// TransferCredits moves amount from patient to doctor: two equal-magnitude
// APPOINTMENT_DEDUCTION rows and both balance updates in one transaction.
// Both user rows are locked in ascending id order, and the balance check runs
// under the lock, so concurrent bookings cannot overdraw the patient.
func (r *LedgerRepository) TransferCredits(ctx context.Context, patientID, doctorID uint, amount int) (domain.User, error) {
	var patient domain.User

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked []domain.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", []uint{patientID, doctorID}).
			Order("id").
			Find(&locked).Error
		if err != nil {
			return err
		}

		byID := make(map[uint]domain.User, len(locked))
		for _, u := range locked {
			byID[u.ID] = u
		}

		current, ok := byID[patientID]
		if !ok {
			return domain.ErrUserNotFound
		}
		if _, ok := byID[doctorID]; !ok {
			return domain.ErrDoctorNotFound
		}

		if current.Credits < amount {
			return domain.ErrInsufficientCredits
		}

		rows := []domain.CreditTransaction{
			{
				ReferenceID: uuid.NewString(),
				UserID:      patientID,
				Amount:      -amount,
				Type:        domain.TxTypeAppointmentDeduction,
			},
			{
				ReferenceID: uuid.NewString(),
				UserID:      doctorID,
				Amount:      amount,
				Type:        domain.TxTypeAppointmentDeduction,
			},
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}

		err = tx.Model(&domain.User{}).Where("id = ?", patientID).
			UpdateColumn("credits", gorm.Expr("credits - ?", amount)).Error
		if err != nil {
			return err
		}

		err = tx.Model(&domain.User{}).Where("id = ?", doctorID).
			UpdateColumn("credits", gorm.Expr("credits + ?", amount)).Error
		if err != nil {
			return err
		}

		return tx.First(&patient, patientID).Error
	})
	if err != nil {
		return domain.User{}, err
	}

	return patient, nil
}

// ListByUser returns a user's ledger history, newest first.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID uint) ([]domain.CreditTransaction, error) {
	var rows []domain.CreditTransaction

	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// BalanceAudit returns a user's cached balance alongside the sum of its
// ledger rows. The two must always agree.
func (r *LedgerRepository) BalanceAudit(ctx context.Context, userID uint) (int, int, error) {
	var user domain.User
	err := r.DB.WithContext(ctx).First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, domain.ErrUserNotFound
		}
		return 0, 0, err
	}

	var sum *int
	err = r.DB.WithContext(ctx).Model(&domain.CreditTransaction{}).
		Where("user_id = ?", userID).
		Select("SUM(amount)").
		Scan(&sum).Error
	if err != nil {
		return 0, 0, err
	}

	if sum == nil {
		return user.Credits, 0, nil
	}

	return user.Credits, *sum, nil
}
