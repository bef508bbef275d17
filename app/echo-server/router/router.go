package router

import (
	"mediMeet/internal/rest"

	"github.com/labstack/echo/v4"
)

func SetupCreditsRoutes(api *echo.Group, handler *rest.CreditsHandler, authRequired echo.MiddlewareFunc, adminOnly echo.MiddlewareFunc) {
	api.GET("/me", handler.Me, authRequired)
	api.GET("/me/transactions", handler.Transactions, authRequired)

	appointments := api.Group("/appointments", authRequired)
	appointments.POST("/charge", handler.ChargeAppointment)

	admin := api.Group("/admin", authRequired, adminOnly)
	admin.GET("/users/:id/balance-audit", handler.AuditBalance)
}

func SetupDoctorRoutes(api *echo.Group, handler *rest.DoctorsHandler, authRequired echo.MiddlewareFunc) {
	doctors := api.Group("/doctors", authRequired)

	doctors.GET("", handler.ListDoctors)
	doctors.GET("/:id", handler.GetDoctorByID)
}
