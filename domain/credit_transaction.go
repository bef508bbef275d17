package domain

import "time"

const (
	TxTypeCreditPurchase       = "CREDIT_PURCHASE"
	TxTypeAppointmentDeduction = "APPOINTMENT_DEDUCTION"
)

// CreditTransaction is an append-only ledger row. Rows are never updated or
// deleted; corrections are new offsetting rows.
type CreditTransaction struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	ReferenceID string  `json:"reference_id" gorm:"column:reference_id;uniqueIndex;not null"`
	UserID      uint    `json:"user_id" gorm:"column:user_id;index;not null"`
	Amount      int     `json:"amount" gorm:"column:amount;not null"`
	Type        string  `json:"type" gorm:"column:type;not null"`
	PackageID   *string `json:"package_id,omitempty" gorm:"column:package_id"`
	CreatedAt   time.Time
}

func (CreditTransaction) TableName() string {
	return "credit_transactions"
}
