package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mediMeet/domain"
	"mediMeet/pkg/logger"

	"github.com/AMFarhan21/fres"
	"github.com/labstack/echo/v4"
)

type (
	DoctorsHandler struct {
		doctorsService DoctorsService
		timeout        time.Duration
	}

	DoctorsService interface {
		GetDoctorByID(ctx context.Context, id uint) (domain.User, error)
		ListDoctors(ctx context.Context, specialty string) ([]domain.User, error)
	}
)

func NewDoctorsHandler(doctorsService DoctorsService) *DoctorsHandler {
	return &DoctorsHandler{
		doctorsService: doctorsService,
		timeout:        10 * time.Second,
	}
}

func (h *DoctorsHandler) ListDoctors(c echo.Context) error {
	specialty := c.QueryParam("specialty")

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	listing, err := h.doctorsService.ListDoctors(ctx, specialty)
	if err != nil {
		logger.Error("Failed to list doctors", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(listing))
}

func (h *DoctorsHandler) GetDoctorByID(c echo.Context) error {
	var doctorID uint
	if _, err := fmt.Sscan(c.Param("id"), &doctorID); err != nil {
		logger.Error("Invalid doctor ID", err)
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid doctor ID"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	doctor, err := h.doctorsService.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, domain.ErrDoctorNotFound) {
			return c.JSON(http.StatusNotFound, ResponseError{Message: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(doctor))
}
