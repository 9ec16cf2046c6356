package httpapi

import (
	"github.com/gin-gonic/gin"

	"campus-portal/internal/auth"
	"campus-portal/internal/policy"
)

func (s *Server) SetupRoutes(r *gin.Engine) {
	r.Use(auth.Middleware(s.Sessions))

	admin := auth.RequireRole(policy.RoleAdmin)
	coordinator := auth.RequireRole(policy.RoleCoordinator)
	student := auth.RequireRole(policy.RoleStudent)

	// Public Routes
	r.GET("/", s.Index)
	r.GET("/event/:id", s.EventDetail)
	r.GET("/categories", s.Categories)
	if s.UploadDir != "" {
		r.Static("/uploads", s.UploadDir)
	}

	r.POST("/admin/register", s.RegisterAdmin)
	r.POST("/student/register", s.RegisterStudent)
	for _, role := range []policy.Role{policy.RoleAdmin, policy.RoleCoordinator, policy.RoleStudent} {
		r.POST("/"+string(role)+"/login", s.Login(role))
		r.GET("/"+string(role)+"/logout", s.Logout(role))
	}
	r.POST("/account/password", s.ChangePassword)

	// Admin: events
	r.POST("/create", admin, s.CreateEvent)
	r.POST("/edit/:id", admin, s.AdminEditEvent)
	r.POST("/delete/:id", admin, s.DeleteEvent)

	adminGroup := r.Group("/admin")
	adminGroup.Use(admin)
	{
		adminGroup.POST("/event/:id/approve", s.ApproveEvent())
		adminGroup.POST("/event/:id/reject", s.RejectEvent())
		adminGroup.POST("/event/:id/complete", s.CompleteEvent())

		adminGroup.GET("/registrations", s.ListRegistrations)
		adminGroup.POST("/registrations/approve/:id", s.ApproveRegistration)
		adminGroup.POST("/registrations/reject/:id", s.RejectRegistration)

		adminGroup.GET("/coordinators", s.ListCoordinators)
		adminGroup.POST("/coordinators/create", s.CreateCoordinator)
		adminGroup.POST("/coordinators/delete/:id", s.DeleteCoordinator)

		adminGroup.GET("/students", s.ListStudents)
		adminGroup.POST("/students/delete/:id", s.DeleteStudent)

		adminGroup.GET("/reports", s.Reports)
	}

	// Participants are open to admins too; the engine checks ownership.
	r.GET("/coordinator/event/:id/participants", s.EventParticipants)

	coordGroup := r.Group("/coordinator")
	coordGroup.Use(coordinator)
	{
		coordGroup.GET("/dashboard", s.CoordinatorDashboard)
		coordGroup.POST("/create_event", s.ProposeEvent)
		coordGroup.POST("/edit_event/:id", s.CoordinatorEditEvent)
		coordGroup.GET("/event/:id/export", s.ExportParticipants)
	}

	studentGroup := r.Group("/student")
	studentGroup.Use(student)
	{
		studentGroup.POST("/register_event/:id", s.RegisterForEvent)
		studentGroup.GET("/dashboard", s.StudentDashboard)
		studentGroup.GET("/history", s.StudentHistory)
		studentGroup.GET("/notifications", s.StudentNotifications)
		studentGroup.GET("/notifications/ws", s.NotificationSocket)
		studentGroup.GET("/certificate/:id", s.StudentCertificate)
		studentGroup.GET("/profile", s.StudentProfile)
		studentGroup.POST("/profile", s.UpdateStudentProfile)
	}
}
