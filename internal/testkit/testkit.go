// Package testkit provides fixtures shared by package tests.
package testkit

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campus-portal/internal/database"
	"campus-portal/internal/models"
)

// DB returns a migrated and seeded in-memory store private to the test.
func DB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Setup("sqlite://file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("setup test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Category loads a seeded category by name.
func Category(t testing.TB, db *gorm.DB, name string) models.Category {
	t.Helper()
	var cat models.Category
	if err := db.Where("name = ?", name).First(&cat).Error; err != nil {
		t.Fatalf("load category %s: %v", name, err)
	}
	return cat
}

func Admin(t testing.TB, db *gorm.DB, username string) models.Admin {
	t.Helper()
	a := models.Admin{Username: username, PasswordHash: "unused"}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return a
}

func Coordinator(t testing.TB, db *gorm.DB, username string) models.Coordinator {
	t.Helper()
	c := models.Coordinator{Username: username, PasswordHash: "unused"}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("create coordinator: %v", err)
	}
	return c
}

func Student(t testing.TB, db *gorm.DB, username string) models.Student {
	t.Helper()
	s := models.Student{Username: username, Email: username + "@campus.edu", PasswordHash: "unused"}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("create student: %v", err)
	}
	return s
}

// Event inserts an event directly, bypassing the workflow.
func Event(t testing.TB, db *gorm.DB, title string, status models.EventStatus, coordinatorID *uint, date time.Time) models.Event {
	t.Helper()
	cat := Category(t, db, "Academic")
	e := models.Event{
		Title:         title,
		CategoryID:    cat.ID,
		Venue:         "Hall A",
		Date:          date,
		CoordinatorID: coordinatorID,
		Status:        status,
		ImageFile:     models.DefaultImage,
	}
	if err := db.Create(&e).Error; err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e
}
