package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campus-portal/internal/auth"
	"campus-portal/internal/models"
	"campus-portal/internal/workflow"
)

type eventRequest struct {
	Title       string `form:"title" json:"title"`
	CategoryID  string `form:"category_id" json:"category_id"`
	Description string `form:"description" json:"description"`
	Venue       string `form:"venue" json:"venue"`
	Date        string `form:"date" json:"date"` // 2006-01-02T15:04
}

func (r eventRequest) input(asset *workflow.Asset) workflow.EventInput {
	return workflow.EventInput{
		Title:       r.Title,
		CategoryID:  r.CategoryID,
		Description: r.Description,
		Venue:       r.Venue,
		Date:        r.Date,
		Asset:       asset,
	}
}

type coordinatorEditRequest struct {
	eventRequest
	Announcements string `form:"announcements" json:"announcements"`
	Results       string `form:"results" json:"results"`
}

type adminEditRequest struct {
	Title       string `form:"title" json:"title"`
	Description string `form:"description" json:"description"`
	Location    string `form:"location" json:"location"`
	Date        string `form:"date" json:"date"`
}

// -----------------------------
// Catalog
// -----------------------------

func (s *Server) Index(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	out, err := s.Engine.ListPublic(c.Request.Context(), page, 0)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) EventDetail(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	out, err := s.Engine.Detail(c.Request.Context(), auth.Principal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) Categories(c *gin.Context) {
	out, err := s.Engine.Categories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// -----------------------------
// Events
// -----------------------------

func (s *Server) CreateEvent(c *gin.Context) {
	var body eventRequest
	if err := c.ShouldBind(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	asset, done, err := formAsset(c)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	defer done()

	ev, err := s.Engine.Create(c.Request.Context(), auth.Principal(c), body.input(asset))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Event created successfully!", "event": ev})
}

func (s *Server) ProposeEvent(c *gin.Context) {
	var body eventRequest
	if err := c.ShouldBind(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	asset, done, err := formAsset(c)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	defer done()

	ev, err := s.Engine.Propose(c.Request.Context(), auth.Principal(c), body.input(asset))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Event proposed successfully. Waiting for admin approval.",
		"event":    ev,
		"redirect": "/coordinator/dashboard",
	})
}

func (s *Server) AdminEditEvent(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body adminEditRequest
	if err := c.ShouldBind(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	ev, err := s.Engine.AdminEdit(c.Request.Context(), auth.Principal(c), id, workflow.AdminEditInput{
		Title:       body.Title,
		Description: body.Description,
		Location:    body.Location,
		Date:        body.Date,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event updated.", "event": ev})
}

func (s *Server) CoordinatorEditEvent(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body coordinatorEditRequest
	if err := c.ShouldBind(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	asset, done, err := formAsset(c)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	defer done()

	ev, err := s.Engine.CoordinatorEdit(c.Request.Context(), auth.Principal(c), id, workflow.CoordinatorEditInput{
		EventInput:    body.input(asset),
		Announcements: body.Announcements,
		Results:       body.Results,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event updated.", "event": ev})
}

func (s *Server) DeleteEvent(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.Engine.Delete(c.Request.Context(), auth.Principal(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event deleted."})
}

// transitionEvent adapts an event status change to a handler.
func (s *Server) transitionEvent(message string, apply func(c *gin.Context, id uint) (*models.Event, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		ev, err := apply(c, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message, "event": ev})
	}
}

func (s *Server) ApproveEvent() gin.HandlerFunc {
	return s.transitionEvent("Event approved.", func(c *gin.Context, id uint) (*models.Event, error) {
		return s.Engine.Approve(c.Request.Context(), auth.Principal(c), id)
	})
}

func (s *Server) RejectEvent() gin.HandlerFunc {
	return s.transitionEvent("Event rejected.", func(c *gin.Context, id uint) (*models.Event, error) {
		return s.Engine.Reject(c.Request.Context(), auth.Principal(c), id)
	})
}

func (s *Server) CompleteEvent() gin.HandlerFunc {
	return s.transitionEvent("Event completed.", func(c *gin.Context, id uint) (*models.Event, error) {
		return s.Engine.Complete(c.Request.Context(), auth.Principal(c), id)
	})
}

// -----------------------------
// Dashboards and reports
// -----------------------------

func (s *Server) CoordinatorDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	p := auth.Principal(c)
	events, err := s.Engine.ListForCoordinator(ctx, p)
	if err != nil {
		fail(c, err)
		return
	}
	coord, err := s.Identity.Coordinator(ctx, p.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coordinator": coord, "events": events})
}

func (s *Server) Reports(c *gin.Context) {
	out, err := s.Engine.Reports(c.Request.Context(), auth.Principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
