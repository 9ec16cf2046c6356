package workflow

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"campus-portal/internal/models"
	"campus-portal/internal/policy"
)

const maxMessageLen = 500

// notify appends a notification row inside tx and queues its push.
func notify(tx *gorm.DB, box *outbox, studentID uint, message string) error {
	message = clip(message, maxMessageLen)
	n := models.Notification{StudentID: studentID, Message: message}
	if err := tx.Create(&n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	*box = append(*box, pending{studentID: studentID, message: message})
	return nil
}

// notifyRegistrants notifies every student registered for eventID, optionally
// restricted to one registration status.
func notifyRegistrants(tx *gorm.DB, box *outbox, eventID uint, only models.RegistrationStatus, message string) error {
	q := tx.Model(&models.Registration{}).Where("event_id = ?", eventID)
	if only != "" {
		q = q.Where("status = ?", only)
	}
	var ids []uint
	if err := q.Order("id asc").Pluck("student_id", &ids).Error; err != nil {
		return fmt.Errorf("load registrants: %w", err)
	}
	for _, id := range ids {
		if err := notify(tx, box, id, message); err != nil {
			return err
		}
	}
	return nil
}

// ListNotifications returns the student's notifications, newest first, and
// marks them all read. The returned rows keep their state from before the call.
func (e *Engine) ListNotifications(ctx context.Context, actor policy.Principal) ([]models.Notification, error) {
	if err := policy.Authorize(actor, policy.ViewOwnRecords); err != nil {
		return nil, err
	}
	var out []models.Notification
	err := e.transact(ctx, func(tx *gorm.DB, _ *outbox) error {
		if err := tx.Where("student_id = ?", actor.ID).
			Order("created_at desc, id desc").Find(&out).Error; err != nil {
			return fmt.Errorf("list notifications: %w", err)
		}
		return tx.Model(&models.Notification{}).
			Where("student_id = ? AND is_read = ?", actor.ID, false).
			Update("is_read", true).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UnreadNotifications lists unread notifications without marking them.
func (e *Engine) UnreadNotifications(ctx context.Context, actor policy.Principal) ([]models.Notification, error) {
	if err := policy.Authorize(actor, policy.ViewOwnRecords); err != nil {
		return nil, err
	}
	var out []models.Notification
	if err := e.db.WithContext(ctx).
		Where("student_id = ? AND is_read = ?", actor.ID, false).
		Order("created_at desc, id desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list unread notifications: %w", err)
	}
	return out, nil
}
