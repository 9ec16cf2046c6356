package httpapi

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-portal/internal/auth"
	"campus-portal/internal/export"
)

// -----------------------------
// Registrations
// -----------------------------

func (s *Server) RegisterForEvent(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	res, err := s.Engine.Register(c.Request.Context(), auth.Principal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	if res.AlreadyRegistered {
		c.JSON(http.StatusOK, gin.H{
			"message":            "You are already registered for this event.",
			"already_registered": true,
			"registration":       res.Registration,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":            "Registered for event successfully.",
		"already_registered": false,
		"registration":       res.Registration,
	})
}

func (s *Server) ListRegistrations(c *gin.Context) {
	out, err := s.Engine.ListAll(c.Request.Context(), auth.Principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) ApproveRegistration(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	reg, err := s.Engine.ApproveRegistration(c.Request.Context(), auth.Principal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Registration approved.", "registration": reg})
}

func (s *Server) RejectRegistration(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	reg, err := s.Engine.RejectRegistration(c.Request.Context(), auth.Principal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Registration rejected.", "registration": reg})
}

func (s *Server) EventParticipants(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	ev, regs, err := s.Engine.ListForEvent(c.Request.Context(), auth.Principal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": ev, "registrations": regs})
}

// ExportParticipants renders the whole file before writing so a failure can
// still be reported as JSON.
func (s *Server) ExportParticipants(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := s.Engine.ExportCSV(c.Request.Context(), auth.Principal(c), id, &buf); err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+export.Filename(id))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// -----------------------------
// Student pages
// -----------------------------

func (s *Server) StudentDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	p := auth.Principal(c)
	st, err := s.Identity.Student(ctx, p)
	if err != nil {
		fail(c, err)
		return
	}
	regs, err := s.Engine.ListForStudent(ctx, p)
	if err != nil {
		fail(c, err)
		return
	}
	unread, err := s.Engine.UnreadNotifications(ctx, p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": st, "registrations": regs, "notifications": unread})
}

func (s *Server) StudentHistory(c *gin.Context) {
	regs, err := s.Engine.ListForStudent(c.Request.Context(), auth.Principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, regs)
}

func (s *Server) StudentNotifications(c *gin.Context) {
	out, err := s.Engine.ListNotifications(c.Request.Context(), auth.Principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// NotificationSocket attaches the student's websocket to the push hub.
func (s *Server) NotificationSocket(c *gin.Context) {
	s.Hub.Serve(c.Writer, c.Request, auth.Principal(c).ID)
}

func (s *Server) StudentCertificate(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	cert, err := s.Engine.Certificate(c.Request.Context(), auth.Principal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}
