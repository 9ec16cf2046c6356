// Package identity manages the three principal kinds and their credentials.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"campus-portal/internal/apperr"
	"campus-portal/internal/models"
	"campus-portal/internal/policy"
)

// Credentials hashes and verifies secrets.
type Credentials interface {
	Hash(secret string) (string, error)
	Verify(hash, secret string) bool
}

// Service is the identity store.
type Service struct {
	db    *gorm.DB
	creds Credentials
}

func NewService(db *gorm.DB, creds Credentials) *Service {
	return &Service{db: db, creds: creds}
}

// RegisterAdmin is the admin self-registration path.
func (s *Service) RegisterAdmin(ctx context.Context, username, password string) (*models.Admin, error) {
	username, password = strings.TrimSpace(username), strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, apperr.Validation("Username and password required.")
	}
	hash, err := s.creds.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	admin := models.Admin{Username: username, PasswordHash: hash}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := exists(tx, &models.Admin{}, "username = ?", username)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("Username already taken.")
		}
		return duplicate(tx.Create(&admin).Error, "Username already taken.")
	})
	if err != nil {
		return nil, err
	}
	slog.Info("admin registered", "admin_id", admin.ID)
	return &admin, nil
}

// RegisterStudent creates a student account.
func (s *Service) RegisterStudent(ctx context.Context, username, email, password string) (*models.Student, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	if username == "" || email == "" || password == "" {
		return nil, apperr.Validation("All fields are required.")
	}
	hash, err := s.creds.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	student := models.Student{Username: username, Email: email, PasswordHash: hash}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := exists(tx, &models.Student{}, "username = ? OR email = ?", username, email)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("Username or email already taken.")
		}
		return duplicate(tx.Create(&student).Error, "Username or email already taken.")
	})
	if err != nil {
		return nil, err
	}
	slog.Info("student registered", "student_id", student.ID)
	return &student, nil
}

// CreateCoordinator is admin-only.
func (s *Service) CreateCoordinator(ctx context.Context, actor policy.Principal, username, password, department string) (*models.Coordinator, error) {
	if err := policy.Authorize(actor, policy.ManageAccounts); err != nil {
		return nil, err
	}
	username, password = strings.TrimSpace(username), strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, apperr.Validation("Username and password required.")
	}
	hash, err := s.creds.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	coord := models.Coordinator{Username: username, PasswordHash: hash}
	if d := strings.TrimSpace(department); d != "" {
		coord.Department = &d
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := exists(tx, &models.Coordinator{}, "username = ?", username)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("Username already taken.")
		}
		return duplicate(tx.Create(&coord).Error, "Username already taken.")
	})
	if err != nil {
		return nil, err
	}
	slog.Info("coordinator created", "coordinator_id", coord.ID, "by", actor.String())
	return &coord, nil
}

// Login checks credentials for role and returns the principal.
func (s *Service) Login(ctx context.Context, role policy.Role, username, password string) (policy.Principal, error) {
	username, password = strings.TrimSpace(username), strings.TrimSpace(password)
	invalid := apperr.Unauthorized("Invalid username or password.", policy.LoginPage(role))

	var (
		id   uint
		hash string
	)
	db := s.db.WithContext(ctx)
	var err error
	switch role {
	case policy.RoleAdmin:
		var a models.Admin
		err = db.Where("username = ?", username).First(&a).Error
		id, hash = a.ID, a.PasswordHash
	case policy.RoleCoordinator:
		var c models.Coordinator
		err = db.Where("username = ?", username).First(&c).Error
		id, hash = c.ID, c.PasswordHash
	case policy.RoleStudent:
		var st models.Student
		err = db.Where("username = ?", username).First(&st).Error
		id, hash = st.ID, st.PasswordHash
	default:
		return policy.Principal{}, apperr.Validation("Unknown role.")
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return policy.Principal{}, invalid
	}
	if err != nil {
		return policy.Principal{}, fmt.Errorf("load %s: %w", role, err)
	}
	if !s.creds.Verify(hash, password) {
		return policy.Principal{}, invalid
	}
	return policy.Principal{Role: role, ID: id}, nil
}

func (s *Service) ListCoordinators(ctx context.Context, actor policy.Principal) ([]models.Coordinator, error) {
	if err := policy.Authorize(actor, policy.ManageAccounts); err != nil {
		return nil, err
	}
	var out []models.Coordinator
	if err := s.db.WithContext(ctx).Order("id asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list coordinators: %w", err)
	}
	return out, nil
}

// DeleteCoordinator removes the account and detaches its events, which stay
// in place without an owner.
func (s *Service) DeleteCoordinator(ctx context.Context, actor policy.Principal, id uint) error {
	if err := policy.Authorize(actor, policy.ManageAccounts); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var coord models.Coordinator
		if err := tx.First(&coord, id).Error; err != nil {
			return notFound(err, "Coordinator not found.")
		}
		if err := tx.Model(&models.Event{}).Where("coordinator_id = ?", id).
			Update("coordinator_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Coordinator{}, id).Error
	})
	if err != nil {
		return err
	}
	slog.Info("coordinator deleted", "coordinator_id", id, "by", actor.String())
	return nil
}

func (s *Service) ListStudents(ctx context.Context, actor policy.Principal) ([]models.Student, error) {
	if err := policy.Authorize(actor, policy.ManageAccounts); err != nil {
		return nil, err
	}
	var out []models.Student
	if err := s.db.WithContext(ctx).Order("id asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return out, nil
}

// DeleteStudent removes the account with its registrations and notifications.
func (s *Service) DeleteStudent(ctx context.Context, actor policy.Principal, id uint) error {
	if err := policy.Authorize(actor, policy.ManageAccounts); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var st models.Student
		if err := tx.First(&st, id).Error; err != nil {
			return notFound(err, "Student not found.")
		}
		if err := tx.Where("student_id = ?", id).Delete(&models.Registration{}).Error; err != nil {
			return err
		}
		if err := tx.Where("student_id = ?", id).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Student{}, id).Error
	})
	if err != nil {
		return err
	}
	slog.Info("student deleted", "student_id", id, "by", actor.String())
	return nil
}

// Student loads the acting student's own record.
func (s *Service) Student(ctx context.Context, actor policy.Principal) (*models.Student, error) {
	if err := policy.Authorize(actor, policy.ViewOwnRecords); err != nil {
		return nil, err
	}
	var st models.Student
	if err := s.db.WithContext(ctx).First(&st, actor.ID).Error; err != nil {
		return nil, notFound(err, "Student not found.")
	}
	return &st, nil
}

// Coordinator loads a coordinator by id.
func (s *Service) Coordinator(ctx context.Context, id uint) (*models.Coordinator, error) {
	var c models.Coordinator
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, "Coordinator not found.")
	}
	return &c, nil
}

// UpdateStudentProfile changes email and/or password; blank values are kept.
func (s *Service) UpdateStudentProfile(ctx context.Context, actor policy.Principal, email, password string) (*models.Student, error) {
	if err := policy.Authorize(actor, policy.ViewOwnRecords); err != nil {
		return nil, err
	}
	email, password = strings.TrimSpace(email), strings.TrimSpace(password)

	var st models.Student
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&st, actor.ID).Error; err != nil {
			return notFound(err, "Student not found.")
		}
		if email != "" && email != st.Email {
			taken, err := exists(tx, &models.Student{}, "email = ? AND id <> ?", email, st.ID)
			if err != nil {
				return err
			}
			if taken {
				return apperr.Conflict("Email already taken.")
			}
			st.Email = email
		}
		if password != "" {
			hash, err := s.creds.Hash(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			st.PasswordHash = hash
		}
		return duplicate(tx.Model(&st).Select("email", "password_hash").Updates(&st).Error, "Email already taken.")
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ChangePassword replaces the acting principal's credential.
func (s *Service) ChangePassword(ctx context.Context, actor policy.Principal, password string) error {
	if actor.Anonymous() {
		return apperr.Unauthorized("Please log in.", "/")
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return apperr.Validation("Password required.")
	}
	hash, err := s.creds.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var model any
	switch actor.Role {
	case policy.RoleAdmin:
		model = &models.Admin{}
	case policy.RoleCoordinator:
		model = &models.Coordinator{}
	default:
		model = &models.Student{}
	}
	res := s.db.WithContext(ctx).Model(model).Where("id = ?", actor.ID).Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Account not found.")
	}
	return nil
}

func exists(tx *gorm.DB, model any, query string, args ...any) (bool, error) {
	var n int64
	if err := tx.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// duplicate reports a unique index violation as a conflict. The pre-insert
// checks can lose to a concurrent writer.
func duplicate(err error, message string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict(message)
	}
	return err
}

func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(message)
	}
	return err
}
