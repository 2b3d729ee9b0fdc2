package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-booking-api/internal/middleware"
	"github.com/noah-isme/studio-booking-api/internal/models"
)

// Handlers bundles every API handler mounted by Register.
type Handlers struct {
	Classes     *ClassHandler
	Instances   *InstanceHandler
	Enrollments *EnrollmentHandler
	Me          *MeHandler
	Staff       *StaffHandler
	Payments    *PaymentHandler
}

// Register mounts the booking API on r. Every route except the payment
// gateway intake requires a bearer token.
func Register(r gin.IRouter, h Handlers, auth middleware.TokenValidator, gatewaySecret string) {
	management := middleware.RequireRoles(models.RoleManagement)
	staff := middleware.RequireRoles(models.RoleStaff)
	staffOrManagement := middleware.RequireRoles(models.RoleStaff, models.RoleManagement)
	student := middleware.RequireRoles(models.RoleStudent)

	r.POST("/payments/events", middleware.GatewaySecret(gatewaySecret), h.Payments.Event)

	api := r.Group("")
	api.Use(middleware.JWT(auth))

	classes := api.Group("/classes")
	classes.GET("", h.Classes.List)
	classes.POST("", management, h.Classes.Create)
	classes.GET("/:id", h.Classes.Get)
	classes.GET("/:id/staff", staffOrManagement, h.Classes.ListStaff)
	classes.POST("/:id/staff", management, h.Classes.AddStaff)
	classes.DELETE("/:id/staff/:staffId", management, h.Classes.RemoveStaff)
	classes.PUT("/:id/instructor", management, h.Classes.ChangeInstructor)

	instances := api.Group("/instances")
	instances.GET("", h.Classes.Upcoming)
	instances.POST("/:id/book", student, h.Instances.Book)
	instances.POST("/:id/book-staff", staff, h.Instances.BookStaff)
	instances.POST("/:id/book-credit", student, h.Instances.BookCredit)
	instances.GET("/:id/eligibility", middleware.RequireRoles(models.RoleStudent, models.RoleManagement), h.Instances.Eligibility)
	instances.DELETE("/:id/enrollment", middleware.RequireRoles(models.RoleStudent, models.RoleStaff), h.Instances.CancelEnrollment)
	instances.POST("/:id/cancel", management, h.Instances.Cancel)
	instances.POST("/:id/cancel-future", management, h.Instances.CancelFuture)
	instances.GET("/:id/roster", staffOrManagement, h.Instances.Roster)
	instances.GET("/:id/roster/export", staffOrManagement, h.Instances.ExportRoster)

	api.PUT("/enrollments/:id/attendance", staff, h.Enrollments.MarkAttendance)

	api.GET("/me/enrollments", h.Me.Enrollments)
	api.GET("/me/credits", student, h.Me.Credits)

	api.GET("/staff/me/classes", staff, h.Staff.Classes)
	api.GET("/staff/me/bookings", staff, h.Staff.Bookings)
}
