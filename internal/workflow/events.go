package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"campus-portal/internal/apperr"
	"campus-portal/internal/models"
	"campus-portal/internal/policy"
	"campus-portal/internal/uploads"
)

// EventInput carries the fields of the create and propose forms.
type EventInput struct {
	Title       string
	CategoryID  string
	Description string
	Venue       string
	Date        string
	Asset       *Asset
}

// AdminEditInput is the admin edit surface.
type AdminEditInput struct {
	Title       string
	Description string
	Location    string
	Date        string
}

// CoordinatorEditInput is the coordinator edit surface.
type CoordinatorEditInput struct {
	EventInput
	Announcements string
	Results       string
}

type eventFields struct {
	title       string
	categoryID  uint
	description *string
	venue       string
	date        time.Time
}

func (in EventInput) validate() (eventFields, error) {
	title := strings.TrimSpace(in.Title)
	venue := strings.TrimSpace(in.Venue)
	date := strings.TrimSpace(in.Date)
	category := strings.TrimSpace(in.CategoryID)
	if title == "" || venue == "" || date == "" || category == "" {
		return eventFields{}, apperr.Validation("Title, Category, Venue and Date are required.")
	}
	when, err := time.Parse(DateLayout, date)
	if err != nil {
		return eventFields{}, apperr.Validation("Invalid date format.")
	}
	id, err := strconv.ParseUint(category, 10, 64)
	if err != nil || id == 0 {
		return eventFields{}, apperr.Validation("Invalid category.")
	}
	return eventFields{
		title:       title,
		categoryID:  uint(id),
		description: optional(strings.TrimSpace(in.Description)),
		venue:       venue,
		date:        when,
	}, nil
}

// storeAsset saves a supplied asset with a permitted extension. It reports
// false when there is nothing to store.
func (e *Engine) storeAsset(a *Asset) (string, bool, error) {
	if a == nil || a.Content == nil || a.Filename == "" || !uploads.Allowed(a.Filename) {
		return "", false, nil
	}
	if e.assets == nil {
		return "", false, fmt.Errorf("no asset store configured")
	}
	name, err := e.assets.Save(a.Filename, a.Content)
	if err != nil {
		return "", false, fmt.Errorf("store asset: %w", err)
	}
	return name, true, nil
}

// dropAsset removes a stored asset whose event row was never committed.
func (e *Engine) dropAsset(name string) {
	if name == "" {
		return
	}
	if err := e.assets.Remove(name); err != nil {
		slog.Warn("remove orphaned asset", "name", name, "error", err)
	}
}

// Propose creates a coordinator-owned event awaiting approval.
func (e *Engine) Propose(ctx context.Context, actor policy.Principal, in EventInput) (*models.Event, error) {
	if err := policy.Authorize(actor, policy.ProposeEvent); err != nil {
		return nil, err
	}
	owner := actor.ID
	ev, err := e.createEvent(ctx, in, models.EventProposed, &owner)
	if err != nil {
		return nil, err
	}
	slog.Info("event proposed", "event_id", ev.ID, "coordinator_id", owner)
	return ev, nil
}

// Create adds a pre-approved event with no coordinator.
func (e *Engine) Create(ctx context.Context, actor policy.Principal, in EventInput) (*models.Event, error) {
	if err := policy.Authorize(actor, policy.CreateEvent); err != nil {
		return nil, err
	}
	ev, err := e.createEvent(ctx, in, models.EventApproved, nil)
	if err != nil {
		return nil, err
	}
	slog.Info("event created", "event_id", ev.ID, "by", actor.String())
	return ev, nil
}

func (e *Engine) createEvent(ctx context.Context, in EventInput, status models.EventStatus, coordinatorID *uint) (*models.Event, error) {
	f, err := in.validate()
	if err != nil {
		return nil, err
	}
	ev := models.Event{
		Title:         f.title,
		CategoryID:    f.categoryID,
		Description:   f.description,
		Venue:         f.venue,
		Date:          f.date,
		CoordinatorID: coordinatorID,
		Status:        status,
		ImageFile:     models.DefaultImage,
	}
	var stored string
	err = e.transact(ctx, func(tx *gorm.DB, _ *outbox) error {
		if err := checkCategory(tx, f.categoryID); err != nil {
			return err
		}
		if coordinatorID != nil {
			var n int64
			if err := tx.Model(&models.Coordinator{}).Where("id = ?", *coordinatorID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return apperr.Unauthorized("Please log in as a coordinator.", policy.LoginPage(policy.RoleCoordinator))
			}
		}
		name, ok, err := e.storeAsset(in.Asset)
		if err != nil {
			return err
		}
		if ok {
			stored = name
			ev.ImageFile = name
		}
		if err := tx.Create(&ev).Error; err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		return tx.Preload("Category").First(&ev, ev.ID).Error
	})
	if err != nil {
		e.dropAsset(stored)
		return nil, err
	}
	return &ev, nil
}

// AdminEdit updates title, description, location and date of any event.
func (e *Engine) AdminEdit(ctx context.Context, actor policy.Principal, id uint, in AdminEditInput) (*models.Event, error) {
	if err := policy.Authorize(actor, policy.AdminEditEvent); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	location := strings.TrimSpace(in.Location)
	date := strings.TrimSpace(in.Date)
	if title == "" || location == "" || date == "" {
		return nil, apperr.Validation("Title, Location and Date are required.")
	}
	when, err := time.Parse(DateLayout, date)
	if err != nil {
		return nil, apperr.Validation("Invalid date format.")
	}

	var ev *models.Event
	err = e.transact(ctx, func(tx *gorm.DB, _ *outbox) error {
		var err error
		if ev, err = loadEvent(tx, id); err != nil {
			return err
		}
		ev.Title = title
		ev.Description = optional(strings.TrimSpace(in.Description))
		ev.Location = &location
		ev.Date = when
		return tx.Model(ev).Updates(map[string]any{
			"title":       ev.Title,
			"description": ev.Description,
			"location":    ev.Location,
			"date":        ev.Date,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	slog.Info("event edited", "event_id", id, "by", actor.String())
	return ev, nil
}

// CoordinatorEdit updates an event owned by the acting coordinator. Changing
// the announcement of an approved event notifies its registrants.
func (e *Engine) CoordinatorEdit(ctx context.Context, actor policy.Principal, id uint, in CoordinatorEditInput) (*models.Event, error) {
	if err := policy.Authorize(actor, policy.CoordinatorEditEvent); err != nil {
		return nil, err
	}

	var (
		ev     *models.Event
		stored string
	)
	err := e.transact(ctx, func(tx *gorm.DB, box *outbox) error {
		var err error
		if ev, err = loadEvent(tx, id); err != nil {
			return err
		}
		if err := policy.Owns(actor, policy.CoordinatorEditEvent, ev.CoordinatorID); err != nil {
			return err
		}
		f, err := in.validate()
		if err != nil {
			return err
		}
		if err := checkCategory(tx, f.categoryID); err != nil {
			return err
		}

		previous := deref(ev.Announcements)
		announcements := optional(strings.TrimSpace(in.Announcements))

		updates := map[string]any{
			"title":         f.title,
			"category_id":   f.categoryID,
			"description":   f.description,
			"venue":         f.venue,
			"date":          f.date,
			"announcements": announcements,
			"results":       optional(strings.TrimSpace(in.Results)),
		}
		name, ok, err := e.storeAsset(in.Asset)
		if err != nil {
			return err
		}
		if ok {
			stored = name
			updates["image_file"] = name
		}
		if err := tx.Model(ev).Updates(updates).Error; err != nil {
			return fmt.Errorf("update event: %w", err)
		}

		if ev.Status == models.EventApproved && announcements != nil && *announcements != previous {
			msg := fmt.Sprintf("Announcement for %s: %s", f.title, *announcements)
			if err := notifyRegistrants(tx, box, ev.ID, "", msg); err != nil {
				return err
			}
		}
		return tx.Preload("Category").First(ev, ev.ID).Error
	})
	if err != nil {
		e.dropAsset(stored)
		return nil, err
	}
	slog.Info("event edited", "event_id", id, "by", actor.String())
	return ev, nil
}

// Approve moves a proposed or rejected event to Approved. Approving an
// approved event changes nothing.
func (e *Engine) Approve(ctx context.Context, actor policy.Principal, id uint) (*models.Event, error) {
	return e.transition(ctx, actor, policy.ApproveEvent, id, func(from models.EventStatus) (models.EventStatus, error) {
		if from == models.EventCompleted {
			return from, apperr.Conflict("Completed events cannot be approved.")
		}
		return models.EventApproved, nil
	}, nil)
}

// Reject moves any event that has not completed to Rejected.
func (e *Engine) Reject(ctx context.Context, actor policy.Principal, id uint) (*models.Event, error) {
	return e.transition(ctx, actor, policy.RejectEvent, id, func(from models.EventStatus) (models.EventStatus, error) {
		// Completed is terminal; every other state can be rejected.
		if from == models.EventCompleted {
			return from, apperr.Conflict("Completed events cannot be rejected.")
		}
		return models.EventRejected, nil
	}, nil)
}

// Complete closes an approved event and tells approved registrants their
// certificate is ready.
func (e *Engine) Complete(ctx context.Context, actor policy.Principal, id uint) (*models.Event, error) {
	return e.transition(ctx, actor, policy.CompleteEvent, id, func(from models.EventStatus) (models.EventStatus, error) {
		switch from {
		case models.EventApproved, models.EventCompleted:
			return models.EventCompleted, nil
		}
		return from, apperr.Conflict("Only approved events can be completed.")
	}, func(tx *gorm.DB, box *outbox, ev *models.Event) error {
		msg := fmt.Sprintf("%s has been completed. Your certificate is available.", ev.Title)
		return notifyRegistrants(tx, box, ev.ID, models.RegistrationApproved, msg)
	})
}

// transition applies next to the event's status. after runs only when the
// status actually changed.
func (e *Engine) transition(
	ctx context.Context,
	actor policy.Principal,
	action policy.Action,
	id uint,
	next func(models.EventStatus) (models.EventStatus, error),
	after func(tx *gorm.DB, box *outbox, ev *models.Event) error,
) (*models.Event, error) {
	if err := policy.Authorize(actor, action); err != nil {
		return nil, err
	}

	var (
		ev   *models.Event
		from models.EventStatus
	)
	err := e.transact(ctx, func(tx *gorm.DB, box *outbox) error {
		var err error
		if ev, err = loadEvent(tx, id); err != nil {
			return err
		}
		from = ev.Status
		to, err := next(from)
		if err != nil {
			return err
		}
		if to == from {
			return nil
		}
		if err := tx.Model(ev).Update("status", to).Error; err != nil {
			return fmt.Errorf("update event status: %w", err)
		}
		ev.Status = to
		if after != nil {
			return after(tx, box, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from != ev.Status {
		slog.Info("event status changed", "event_id", id, "from", from, "to", ev.Status, "by", actor.String())
	}
	return ev, nil
}

// Delete removes an event together with its registrations.
func (e *Engine) Delete(ctx context.Context, actor policy.Principal, id uint) error {
	if err := policy.Authorize(actor, policy.DeleteEvent); err != nil {
		return err
	}
	err := e.transact(ctx, func(tx *gorm.DB, _ *outbox) error {
		if _, err := loadEvent(tx, id); err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", id).Delete(&models.Registration{}).Error; err != nil {
			return fmt.Errorf("delete registrations: %w", err)
		}
		return tx.Delete(&models.Event{}, id).Error
	})
	if err != nil {
		return err
	}
	slog.Info("event deleted", "event_id", id, "by", actor.String())
	return nil
}

// Get loads an event regardless of status.
func (e *Engine) Get(ctx context.Context, id uint) (*models.Event, error) {
	return loadEvent(e.db.WithContext(ctx), id)
}

// EventDetail is the public detail view.
type EventDetail struct {
	Event        models.Event         `json:"event"`
	IsRegistered bool                 `json:"is_registered"`
	Registration *models.Registration `json:"registration,omitempty"`
}

// Detail returns an event for viewer. Events outside the catalog are only
// visible to an admin or the owning coordinator.
func (e *Engine) Detail(ctx context.Context, viewer policy.Principal, id uint) (*EventDetail, error) {
	db := e.db.WithContext(ctx)
	ev, err := loadEvent(db, id)
	if err != nil {
		return nil, err
	}
	if !ev.Status.Public() && !viewer.IsAdmin() && !ownedBy(viewer, ev) {
		return nil, apperr.NotFound("Event not found.")
	}

	out := &EventDetail{Event: *ev}
	if viewer.IsStudent() {
		var regs []models.Registration
		if err := db.Where("student_id = ? AND event_id = ?", viewer.ID, ev.ID).Limit(1).Find(&regs).Error; err != nil {
			return nil, fmt.Errorf("load registration: %w", err)
		}
		if len(regs) > 0 {
			out.IsRegistered = true
			out.Registration = &regs[0]
		}
	}
	return out, nil
}

func ownedBy(p policy.Principal, ev *models.Event) bool {
	return p.IsCoordinator() && ev.CoordinatorID != nil && *ev.CoordinatorID == p.ID
}

// ListForCoordinator returns the acting coordinator's events by date.
func (e *Engine) ListForCoordinator(ctx context.Context, actor policy.Principal) ([]models.Event, error) {
	if err := policy.Authorize(actor, policy.ViewOwnEvents); err != nil {
		return nil, err
	}
	var out []models.Event
	if err := e.db.WithContext(ctx).Preload("Category").
		Where("coordinator_id = ?", actor.ID).
		Order("date asc, id asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list coordinator events: %w", err)
	}
	return out, nil
}

// EventStat is one row of the admin report.
type EventStat struct {
	ID            uint               `json:"id"`
	Title         string             `json:"title"`
	Date          time.Time          `json:"date"`
	Status        models.EventStatus `json:"status"`
	Registrations int64              `json:"registrations"`
}

// Report summarizes portal activity.
type Report struct {
	TotalStudents      int64       `json:"total_students"`
	TotalEvents        int64       `json:"total_events"`
	TotalRegistrations int64       `json:"total_registrations"`
	Events             []EventStat `json:"events"`
}

// Reports builds the admin activity report.
func (e *Engine) Reports(ctx context.Context, actor policy.Principal) (*Report, error) {
	if err := policy.Authorize(actor, policy.ViewReports); err != nil {
		return nil, err
	}
	db := e.db.WithContext(ctx)
	var r Report
	if err := db.Model(&models.Student{}).Count(&r.TotalStudents).Error; err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}
	if err := db.Model(&models.Event{}).Count(&r.TotalEvents).Error; err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	if err := db.Model(&models.Registration{}).Count(&r.TotalRegistrations).Error; err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}

	var events []models.Event
	if err := db.Order("date asc, id asc").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	var counts []struct {
		EventID uint
		N       int64
	}
	if err := db.Model(&models.Registration{}).
		Select("event_id, COUNT(*) AS n").
		Group("event_id").Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("count registrations per event: %w", err)
	}
	byEvent := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byEvent[c.EventID] = c.N
	}

	r.Events = make([]EventStat, 0, len(events))
	for _, ev := range events {
		r.Events = append(r.Events, EventStat{
			ID:            ev.ID,
			Title:         ev.Title,
			Date:          ev.Date,
			Status:        ev.Status,
			Registrations: byEvent[ev.ID],
		})
	}
	return &r, nil
}
