package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campus-portal/internal/apperr"
	"campus-portal/internal/export"
	"campus-portal/internal/models"
	"campus-portal/internal/policy"
)

// RegisterResult reports the registration and whether it already existed.
type RegisterResult struct {
	Registration      models.Registration `json:"registration"`
	AlreadyRegistered bool                `json:"already_registered"`
}

// Register signs the acting student up for an approved event. A repeated
// call returns the existing registration instead of failing.
func (e *Engine) Register(ctx context.Context, actor policy.Principal, eventID uint) (*RegisterResult, error) {
	if err := policy.Authorize(actor, policy.RegisterForEvent); err != nil {
		return nil, err
	}

	var res RegisterResult
	err := e.transact(ctx, func(tx *gorm.DB, _ *outbox) error {
		ev, err := loadEvent(tx, eventID)
		if err != nil {
			return err
		}

		existing, err := findRegistration(tx, actor.ID, ev.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			res = RegisterResult{Registration: *existing, AlreadyRegistered: true}
			return nil
		}
		if ev.Status != models.EventApproved {
			return apperr.Conflict("Registration is not open for this event.")
		}

		var n int64
		if err := tx.Model(&models.Student{}).Where("id = ?", actor.ID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.Unauthorized("Please log in as a student.", policy.LoginPage(policy.RoleStudent))
		}

		reg := models.Registration{
			StudentID: actor.ID,
			EventID:   ev.ID,
			Status:    models.RegistrationPending,
			CreatedAt: e.now().UTC(),
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reg)
		if result.Error != nil {
			return fmt.Errorf("create registration: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			// Lost a race against a concurrent insert for the same pair. A
			// locking read sees the winner's committed row under snapshot
			// isolation.
			existing, err := findRegistration(tx.Clauses(clause.Locking{Strength: "SHARE"}), actor.ID, ev.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("registration for student %d event %d vanished", actor.ID, ev.ID)
			}
			res = RegisterResult{Registration: *existing, AlreadyRegistered: true}
			return nil
		}
		res = RegisterResult{Registration: reg}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !res.AlreadyRegistered {
		slog.Info("student registered for event", "student_id", actor.ID, "event_id", eventID, "registration_id", res.Registration.ID)
	}
	return &res, nil
}

func findRegistration(tx *gorm.DB, studentID, eventID uint) (*models.Registration, error) {
	var regs []models.Registration
	if err := tx.Where("student_id = ? AND event_id = ?", studentID, eventID).Limit(1).Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	if len(regs) == 0 {
		return nil, nil
	}
	return &regs[0], nil
}

// ApproveRegistration moves a pending registration to Approved and stamps
// approved_at. Approving again keeps the first timestamp.
func (e *Engine) ApproveRegistration(ctx context.Context, actor policy.Principal, id uint) (*models.Registration, error) {
	if err := policy.Authorize(actor, policy.ApproveRegistration); err != nil {
		return nil, err
	}

	var reg *models.Registration
	err := e.transact(ctx, func(tx *gorm.DB, box *outbox) error {
		var err error
		if reg, err = loadRegistration(tx, id); err != nil {
			return err
		}
		switch reg.Status {
		case models.RegistrationApproved:
			return nil
		case models.RegistrationRejected:
			return apperr.Conflict("Rejected registrations cannot be approved.")
		}

		now := e.now().UTC()
		if err := tx.Model(reg).Updates(map[string]any{
			"status":      models.RegistrationApproved,
			"approved_at": now,
		}).Error; err != nil {
			return fmt.Errorf("approve registration: %w", err)
		}
		reg.Status = models.RegistrationApproved
		reg.ApprovedAt = &now
		return notify(tx, box, reg.StudentID, fmt.Sprintf("Your registration for %s has been approved.", reg.Event.Title))
	})
	if err != nil {
		return nil, err
	}
	slog.Info("registration approved", "registration_id", id, "by", actor.String())
	return reg, nil
}

// RejectRegistration moves a pending registration to Rejected.
func (e *Engine) RejectRegistration(ctx context.Context, actor policy.Principal, id uint) (*models.Registration, error) {
	if err := policy.Authorize(actor, policy.RejectRegistration); err != nil {
		return nil, err
	}

	var reg *models.Registration
	err := e.transact(ctx, func(tx *gorm.DB, box *outbox) error {
		var err error
		if reg, err = loadRegistration(tx, id); err != nil {
			return err
		}
		switch reg.Status {
		case models.RegistrationRejected:
			return nil
		case models.RegistrationApproved:
			return apperr.Conflict("Approved registrations cannot be rejected.")
		}

		if err := tx.Model(reg).Update("status", models.RegistrationRejected).Error; err != nil {
			return fmt.Errorf("reject registration: %w", err)
		}
		reg.Status = models.RegistrationRejected
		return notify(tx, box, reg.StudentID, fmt.Sprintf("Your registration for %s has been rejected.", reg.Event.Title))
	})
	if err != nil {
		return nil, err
	}
	slog.Info("registration rejected", "registration_id", id, "by", actor.String())
	return reg, nil
}

// ListForStudent returns the acting student's registrations.
func (e *Engine) ListForStudent(ctx context.Context, actor policy.Principal) ([]models.Registration, error) {
	if err := policy.Authorize(actor, policy.ViewOwnRecords); err != nil {
		return nil, err
	}
	var out []models.Registration
	if err := e.db.WithContext(ctx).Preload("Event").Preload("Event.Category").
		Where("student_id = ?", actor.ID).
		Order("id asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list student registrations: %w", err)
	}
	return out, nil
}

// ListAll returns every registration, newest first.
func (e *Engine) ListAll(ctx context.Context, actor policy.Principal) ([]models.Registration, error) {
	if err := policy.Authorize(actor, policy.ViewRegistrations); err != nil {
		return nil, err
	}
	var out []models.Registration
	if err := e.db.WithContext(ctx).Preload("Event").Preload("Student").
		Order("created_at desc, id desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return out, nil
}

// ListForEvent returns an event's registrations in insertion order.
func (e *Engine) ListForEvent(ctx context.Context, actor policy.Principal, eventID uint) (*models.Event, []models.Registration, error) {
	ev, err := e.participantsOf(ctx, actor, policy.ViewParticipants, eventID)
	if err != nil {
		return nil, nil, err
	}
	var out []models.Registration
	if err := e.db.WithContext(ctx).Preload("Student").
		Where("event_id = ?", eventID).
		Order("id asc").Find(&out).Error; err != nil {
		return nil, nil, fmt.Errorf("list event registrations: %w", err)
	}
	return ev, out, nil
}

// ExportCSV writes the participant list of an event owned by the acting
// coordinator.
func (e *Engine) ExportCSV(ctx context.Context, actor policy.Principal, eventID uint, w io.Writer) error {
	if _, err := e.participantsOf(ctx, actor, policy.ExportParticipants, eventID); err != nil {
		return err
	}
	var regs []models.Registration
	if err := e.db.WithContext(ctx).Preload("Student").
		Where("event_id = ?", eventID).
		Order("id asc").Find(&regs).Error; err != nil {
		return fmt.Errorf("list event registrations: %w", err)
	}

	rows := make([]export.Participant, 0, len(regs))
	for _, r := range regs {
		rows = append(rows, export.Participant{
			Username:     r.Student.Username,
			Email:        r.Student.Email,
			RegisteredAt: r.CreatedAt,
			Status:       string(r.Status),
		})
	}
	return export.WriteCSV(w, rows)
}

func (e *Engine) participantsOf(ctx context.Context, actor policy.Principal, action policy.Action, eventID uint) (*models.Event, error) {
	if err := policy.Authorize(actor, action); err != nil {
		return nil, err
	}
	ev, err := loadEvent(e.db.WithContext(ctx), eventID)
	if err != nil {
		return nil, err
	}
	if err := policy.Owns(actor, action, ev.CoordinatorID); err != nil {
		return nil, err
	}
	return ev, nil
}

// Certificate is issued for an approved registration.
type Certificate struct {
	Student  *models.Student `json:"student"`
	Event    *models.Event   `json:"event"`
	IssuedAt time.Time       `json:"issued_at"`
}

// Certificate returns the participation certificate for the acting student.
func (e *Engine) Certificate(ctx context.Context, actor policy.Principal, eventID uint) (*Certificate, error) {
	if err := policy.Authorize(actor, policy.ViewOwnRecords); err != nil {
		return nil, err
	}
	var regs []models.Registration
	if err := e.db.WithContext(ctx).Preload("Student").Preload("Event").Preload("Event.Category").
		Where("student_id = ? AND event_id = ? AND status = ?", actor.ID, eventID, models.RegistrationApproved).
		Limit(1).Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	if len(regs) == 0 {
		return nil, apperr.NotFound("Certificate not available.")
	}
	reg := regs[0]
	issued := reg.CreatedAt
	if reg.ApprovedAt != nil {
		issued = *reg.ApprovedAt
	}
	return &Certificate{Student: reg.Student, Event: reg.Event, IssuedAt: issued}, nil
}
