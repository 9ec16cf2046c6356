package models

import (
	"time"
)

// EventStatus is the lifecycle state of an Event.
type EventStatus string

const (
	EventProposed  EventStatus = "Proposed"
	EventApproved  EventStatus = "Approved"
	EventRejected  EventStatus = "Rejected"
	EventCompleted EventStatus = "Completed"
)

// Public reports whether the event belongs in the public catalog.
func (s EventStatus) Public() bool {
	return s == EventApproved || s == EventCompleted
}

// RegistrationStatus is the lifecycle state of a Registration.
type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationApproved RegistrationStatus = "Approved"
	RegistrationRejected RegistrationStatus = "Rejected"
)

// DefaultImage is referenced by events created without an upload.
const DefaultImage = "default.jpg"

// Admin can self-register and manages everything else.
type Admin struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"size:120;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// Coordinator proposes and runs events. Created only by an Admin.
type Coordinator struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"size:120;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	Department   *string   `json:"department,omitempty" gorm:"size:120"`
	CreatedAt    time.Time `json:"created_at"`

	// Deleting a coordinator detaches its events.
	Events []Event `json:"events,omitempty" gorm:"foreignKey:CoordinatorID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// Student registers for events and receives notifications.
type Student struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"size:120;uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"size:120;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	CreatedAt    time.Time `json:"created_at"`

	// Deleting a student deletes its registrations and notifications.
	Registrations []Registration `json:"registrations,omitempty" gorm:"foreignKey:StudentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Notifications []Notification `json:"notifications,omitempty" gorm:"foreignKey:StudentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// Category is the fixed event vocabulary.
type Category struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:100;uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is the core event model
type Event struct {
	ID            uint        `json:"id" gorm:"primaryKey"`
	Title         string      `json:"title" gorm:"size:120;not null"`
	CategoryID    uint        `json:"category_id" gorm:"not null;index"`
	Description   *string     `json:"description,omitempty" gorm:"type:text"`
	Date          time.Time   `json:"date" gorm:"not null;index"`
	Venue         string      `json:"venue" gorm:"size:200;not null"`
	Location      *string     `json:"location,omitempty" gorm:"size:200"`
	CoordinatorID *uint       `json:"coordinator_id,omitempty" gorm:"index"`
	Status        EventStatus `json:"status" gorm:"size:50;not null;default:'Proposed';index"`
	Announcements *string     `json:"announcements,omitempty" gorm:"type:text"`
	Results       *string     `json:"results,omitempty" gorm:"type:text"`
	ImageFile     string      `json:"image_file" gorm:"size:120;not null;default:'default.jpg'"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`

	Category      Category       `json:"category" gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Registrations []Registration `json:"-" gorm:"foreignKey:EventID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// Registration ties a student to an event. At most one per pair.
type Registration struct {
	ID         uint               `json:"id" gorm:"primaryKey"`
	StudentID  uint               `json:"student_id" gorm:"not null;uniqueIndex:idx_registration_student_event"`
	EventID    uint               `json:"event_id" gorm:"not null;uniqueIndex:idx_registration_student_event;index"`
	Status     RegistrationStatus `json:"status" gorm:"size:50;not null;default:'Pending'"`
	CreatedAt  time.Time          `json:"created_at"`
	ApprovedAt *time.Time         `json:"approved_at,omitempty"`

	// Set only when preloaded.
	Student *Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Event   *Event   `json:"event,omitempty" gorm:"foreignKey:EventID"`
}

// Notification is an append-only message to a student.
type Notification struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	StudentID uint      `json:"student_id" gorm:"not null;index"`
	Message   string    `json:"message" gorm:"size:500;not null"`
	IsRead    bool      `json:"is_read" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
}

// All lists every model in migration order.
func All() []any {
	return []any{
		&Admin{},
		&Coordinator{},
		&Student{},
		&Category{},
		&Event{},
		&Registration{},
		&Notification{},
	}
}
