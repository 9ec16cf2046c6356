package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"campus-portal/internal/apperr"
	"campus-portal/internal/auth"
	"campus-portal/internal/models"
	"campus-portal/internal/policy"
	"campus-portal/internal/testkit"
)

func newService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	db := testkit.DB(t)
	return NewService(db, auth.Bcrypt{Cost: bcrypt.MinCost}), context.Background()
}

func TestRegisterAdminAndLogin(t *testing.T) {
	svc, ctx := newService(t)

	admin, err := svc.RegisterAdmin(ctx, "  root ", "pw")
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	if admin.Username != "root" {
		t.Fatalf("expected trimmed username, got %q", admin.Username)
	}

	p, err := svc.Login(ctx, policy.RoleAdmin, "root", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if p != policy.Admin(admin.ID) {
		t.Fatalf("expected admin principal, got %v", p)
	}

	_, err = svc.Login(ctx, policy.RoleAdmin, "root", "nope")
	if !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	_, err = svc.Login(ctx, policy.RoleStudent, "root", "pw")
	if !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected admin credentials to fail as student, got %v", err)
	}

	_, err = svc.RegisterAdmin(ctx, "root", "other")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected duplicate conflict, got %v", err)
	}
	_, err = svc.RegisterAdmin(ctx, "", "pw")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegisterStudentRejectsDuplicates(t *testing.T) {
	svc, ctx := newService(t)

	if _, err := svc.RegisterStudent(ctx, "ana", "ana@campus.edu", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.RegisterStudent(ctx, "ana2", "ana@campus.edu", "pw")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected email conflict, got %v", err)
	}
	_, err = svc.RegisterStudent(ctx, "ana", "other@campus.edu", "pw")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected username conflict, got %v", err)
	}
	_, err = svc.RegisterStudent(ctx, "bo", "", "pw")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateCoordinatorIsAdminOnly(t *testing.T) {
	svc, ctx := newService(t)

	_, err := svc.CreateCoordinator(ctx, policy.Student(1), "c1", "pw", "CS")
	if !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	coord, err := svc.CreateCoordinator(ctx, policy.Admin(1), "c1", "pw", "CS")
	if err != nil {
		t.Fatalf("create coordinator: %v", err)
	}
	if coord.Department == nil || *coord.Department != "CS" {
		t.Fatalf("expected department CS, got %v", coord.Department)
	}
	if _, err := svc.Login(ctx, policy.RoleCoordinator, "c1", "pw"); err != nil {
		t.Fatalf("coordinator login: %v", err)
	}

	list, err := svc.ListCoordinators(ctx, policy.Admin(1))
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one coordinator, got %d (%v)", len(list), err)
	}
}

func TestDeleteCoordinatorDetachesEvents(t *testing.T) {
	db := testkit.DB(t)
	svc := NewService(db, auth.Bcrypt{Cost: bcrypt.MinCost})
	ctx := context.Background()

	coord := testkit.Coordinator(t, db, "c1")
	ev := testkit.Event(t, db, "Robotics", models.EventProposed, &coord.ID, time.Now())

	if err := svc.DeleteCoordinator(ctx, policy.Admin(1), coord.ID); err != nil {
		t.Fatalf("delete coordinator: %v", err)
	}

	var reloaded models.Event
	if err := db.First(&reloaded, ev.ID).Error; err != nil {
		t.Fatalf("expected event to survive, got %v", err)
	}
	if reloaded.CoordinatorID != nil {
		t.Fatalf("expected event detached, got coordinator %d", *reloaded.CoordinatorID)
	}

	err := svc.DeleteCoordinator(ctx, policy.Admin(1), coord.ID)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteStudentCascades(t *testing.T) {
	db := testkit.DB(t)
	svc := NewService(db, auth.Bcrypt{Cost: bcrypt.MinCost})
	ctx := context.Background()

	st := testkit.Student(t, db, "ana")
	ev := testkit.Event(t, db, "Hack Day", models.EventApproved, nil, time.Now())
	if err := db.Create(&models.Registration{StudentID: st.ID, EventID: ev.ID, Status: models.RegistrationPending}).Error; err != nil {
		t.Fatalf("create registration: %v", err)
	}
	if err := db.Create(&models.Notification{StudentID: st.ID, Message: "hi"}).Error; err != nil {
		t.Fatalf("create notification: %v", err)
	}

	if err := svc.DeleteStudent(ctx, policy.Admin(1), st.ID); err != nil {
		t.Fatalf("delete student: %v", err)
	}

	var regs, notes int64
	db.Model(&models.Registration{}).Where("student_id = ?", st.ID).Count(&regs)
	db.Model(&models.Notification{}).Where("student_id = ?", st.ID).Count(&notes)
	if regs != 0 || notes != 0 {
		t.Fatalf("expected cascade, got %d registrations and %d notifications", regs, notes)
	}
}

func TestUpdateStudentProfile(t *testing.T) {
	svc, ctx := newService(t)

	ana, err := svc.RegisterStudent(ctx, "ana", "ana@campus.edu", "pw")
	if err != nil {
		t.Fatalf("register ana: %v", err)
	}
	if _, err := svc.RegisterStudent(ctx, "bo", "bo@campus.edu", "pw"); err != nil {
		t.Fatalf("register bo: %v", err)
	}

	_, err = svc.UpdateStudentProfile(ctx, policy.Student(ana.ID), "bo@campus.edu", "")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected email conflict, got %v", err)
	}

	updated, err := svc.UpdateStudentProfile(ctx, policy.Student(ana.ID), "ana@uni.edu", "newpw")
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Email != "ana@uni.edu" {
		t.Fatalf("expected new email, got %q", updated.Email)
	}
	if _, err := svc.Login(ctx, policy.RoleStudent, "ana", "newpw"); err != nil {
		t.Fatalf("expected new password to work: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, ctx := newService(t)

	admin, err := svc.RegisterAdmin(ctx, "root", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.ChangePassword(ctx, policy.Admin(admin.ID), "pw2"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Login(ctx, policy.RoleAdmin, "root", "pw2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if err := svc.ChangePassword(ctx, policy.Admin(999), "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSignupLosingUniqueRaceIsConflict(t *testing.T) {
	svc, ctx := newService(t)

	// Another sign-up commits the same username after the availability check.
	err := svc.db.Callback().Create().Before("gorm:create").Register("test:competing_signup", func(tx *gorm.DB) {
		a, ok := tx.Statement.Dest.(*models.Admin)
		if !ok {
			return
		}
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO admins (username, password_hash, created_at) VALUES (?, ?, ?)",
			a.Username, "x", time.Now(),
		)
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	_, err = svc.RegisterAdmin(ctx, "root", "pw")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
