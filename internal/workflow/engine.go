// Package workflow implements the event and registration lifecycles. Every
// call takes the acting principal explicitly and every mutation runs in a
// single transaction.
package workflow

import (
	"context"
	"errors"
	"io"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"campus-portal/internal/apperr"
	"campus-portal/internal/models"
)

// DateLayout is the accepted event date format.
const DateLayout = "2006-01-02T15:04"

// DefaultPageSize is the catalog page size when none is configured.
const DefaultPageSize = 6

// AssetStore persists uploaded event assets and returns the stored name.
type AssetStore interface {
	Save(filename string, content io.Reader) (string, error)
	Remove(name string) error
}

// Publisher pushes a notification to a connected student.
type Publisher interface {
	Publish(studentID uint, content string)
}

// Asset is an uploaded file attached to an event form.
type Asset struct {
	Filename string
	Content  io.Reader
}

type discard struct{}

func (discard) Publish(uint, string) {}

// Engine runs both workflows against one store.
type Engine struct {
	db        *gorm.DB
	assets    AssetStore
	publisher Publisher
	now       func() time.Time
	pageSize  int
}

// NewEngine wires the engine. publisher may be nil.
func NewEngine(db *gorm.DB, assets AssetStore, publisher Publisher, pageSize int) *Engine {
	if publisher == nil {
		publisher = discard{}
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Engine{
		db:        db,
		assets:    assets,
		publisher: publisher,
		now:       time.Now,
		pageSize:  pageSize,
	}
}

// PageSize is the configured catalog page size.
func (e *Engine) PageSize() int { return e.pageSize }

type pending struct {
	studentID uint
	message   string
}

// outbox collects pushes made inside a transaction; they go out after commit.
type outbox []pending

// transact runs fn in a transaction and publishes queued notifications once
// it commits.
func (e *Engine) transact(ctx context.Context, fn func(tx *gorm.DB, box *outbox) error) error {
	var box outbox
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, &box)
	})
	if err != nil {
		return err
	}
	for _, p := range box {
		e.publisher.Publish(p.studentID, p.message)
	}
	return nil
}

func loadEvent(tx *gorm.DB, id uint) (*models.Event, error) {
	var ev models.Event
	if err := tx.Preload("Category").First(&ev, id).Error; err != nil {
		return nil, notFound(err, "Event not found.")
	}
	return &ev, nil
}

func loadRegistration(tx *gorm.DB, id uint) (*models.Registration, error) {
	var reg models.Registration
	if err := tx.Preload("Event").Preload("Student").First(&reg, id).Error; err != nil {
		return nil, notFound(err, "Registration not found.")
	}
	return &reg, nil
}

func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(message)
	}
	return err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// clip bounds a notification message to the column size.
func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
