package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mediMeet/domain"
	"mediMeet/pkg/logger"
	"mediMeet/pkg/metrics"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	CreditsHandler struct {
		validate        *validator.Validate
		identityService IdentityService
		creditsService  CreditsService
		timeout         time.Duration
	}

	IdentityService interface {
		Reconcile(ctx context.Context, principal domain.Principal) (domain.User, *domain.CreditTransaction, error)
	}

	CreditsService interface {
		AllocateMonthlyCredits(ctx context.Context, user domain.User, latestPurchase *domain.CreditTransaction) (domain.User, error)
		ChargeAppointment(ctx context.Context, patientID, doctorID uint) (domain.User, error)
		Transactions(ctx context.Context, userID uint) ([]domain.CreditTransaction, error)
		AuditBalance(ctx context.Context, userID uint) (int, int, bool, error)
	}

	ChargeAppointmentRequest struct {
		DoctorID uint `json:"doctor_id" validate:"required"`
	}

	ChargeAppointmentResponse struct {
		Success bool         `json:"success"`
		User    *domain.User `json:"user,omitempty"`
		Error   string       `json:"error,omitempty"`
	}

	BalanceAuditResponse struct {
		UserID     uint `json:"user_id"`
		Credits    int  `json:"credits"`
		LedgerSum  int  `json:"ledger_sum"`
		Consistent bool `json:"consistent"`
	}
)

// ResponseError represent the response error struct
type ResponseError struct {
	Message string `json:"message"`
}

func NewCreditsHandler(identityService IdentityService, creditsService CreditsService) *CreditsHandler {
	return &CreditsHandler{
		validate:        validator.New(),
		identityService: identityService,
		creditsService:  creditsService,
		timeout:         10 * time.Second,
	}
}

// Me reconciles the authenticated principal and tops up the monthly credit
// allocation. An allocation failure degrades to the reconciled user so the
// request still succeeds with a stale-but-not-incorrect balance.
func (h *CreditsHandler) Me(c echo.Context) error {
	principal, ok := c.Get("principal").(domain.Principal)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ResponseError{Message: "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	user, latestPurchase, err := h.identityService.Reconcile(ctx, principal)
	if err != nil {
		if errors.Is(err, domain.ErrNoPrincipal) {
			return c.JSON(http.StatusUnauthorized, ResponseError{Message: "unauthorized"})
		}
		logger.Error("Failed to reconcile identity", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: "could not establish identity"})
	}

	allocated, err := h.creditsService.AllocateMonthlyCredits(ctx, user, latestPurchase)
	if err != nil {
		logger.Warn("Monthly credit allocation failed, serving reconciled user", err)
		allocated = user
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(allocated))
}

// ChargeAppointment settles the booking fee between the authenticated patient
// and a doctor. Every failure mode comes back as {success:false, error} so
// the booking flow can branch without exception handling.
func (h *CreditsHandler) ChargeAppointment(c echo.Context) error {
	start := time.Now()

	principal, ok := c.Get("principal").(domain.Principal)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ResponseError{Message: "unauthorized"})
	}

	var request ChargeAppointmentRequest
	if err := c.Bind(&request); err != nil {
		logger.Error("Invalid request body", err)
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	if err := h.validate.Struct(&request); err != nil {
		logger.Error("Failed to validate charge appointment request", err)
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	patient, _, err := h.identityService.Reconcile(ctx, principal)
	if err != nil {
		logger.Error("Failed to reconcile identity for settlement", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: "could not establish identity"})
	}

	updated, err := h.creditsService.ChargeAppointment(ctx, patient.ID, request.DoctorID)

	metrics.SettlementLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrInsufficientCredits):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrDoctorNotFound):
			status = http.StatusNotFound
		}

		return c.JSON(status, ChargeAppointmentResponse{
			Success: false,
			Error:   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, ChargeAppointmentResponse{
		Success: true,
		User:    &updated,
	})
}

// Transactions returns the authenticated user's ledger history.
func (h *CreditsHandler) Transactions(c echo.Context) error {
	principal, ok := c.Get("principal").(domain.Principal)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ResponseError{Message: "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	user, _, err := h.identityService.Reconcile(ctx, principal)
	if err != nil {
		logger.Error("Failed to reconcile identity", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: "could not establish identity"})
	}

	rows, err := h.creditsService.Transactions(ctx, user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(rows))
}

// AuditBalance compares a user's cached balance against the ledger sum.
// Admin only.
func (h *CreditsHandler) AuditBalance(c echo.Context) error {
	var userID uint
	if _, err := fmt.Sscan(c.Param("id"), &userID); err != nil {
		logger.Error("Invalid user ID", err)
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid user ID"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	cached, sum, consistent, err := h.creditsService.AuditBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, ResponseError{Message: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(BalanceAuditResponse{
		UserID:     userID,
		Credits:    cached,
		LedgerSum:  sum,
		Consistent: consistent,
	}))
}
