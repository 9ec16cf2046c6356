package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"campus-portal/internal/apperr"
	"campus-portal/internal/models"
	"campus-portal/internal/policy"
	"campus-portal/internal/testkit"
)

func TestHackDayScenario(t *testing.T) {
	f := newFixture(t)
	admin := policy.Admin(testkit.Admin(t, f.db, "root").ID)
	s1 := policy.Student(testkit.Student(t, f.db, "s1").ID)

	e1, err := f.engine.Create(f.ctx, admin, f.input(t, "Hack Day"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if e1.Status != models.EventApproved {
		t.Fatalf("expected Approved, got %s", e1.Status)
	}

	first, err := f.engine.Register(f.ctx, s1, e1.ID)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if first.AlreadyRegistered || first.Registration.Status != models.RegistrationPending {
		t.Fatalf("expected new pending registration, got %+v", first)
	}

	approved, err := f.engine.ApproveRegistration(f.ctx, admin, first.Registration.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != models.RegistrationApproved || approved.ApprovedAt == nil {
		t.Fatalf("expected approved with timestamp, got %+v", approved)
	}
	if approved.ApprovedAt.After(fixedNow) {
		t.Fatalf("expected approved_at <= now, got %s", approved.ApprovedAt)
	}

	again, err := f.engine.Register(f.ctx, s1, e1.ID)
	if err != nil {
		t.Fatalf("register again: %v", err)
	}
	if !again.AlreadyRegistered || again.Registration.ID != first.Registration.ID {
		t.Fatalf("expected already registered, got %+v", again)
	}
	if n := f.count(t, &models.Registration{}, "student_id = ? AND event_id = ?", s1.ID, e1.ID); n != 1 {
		t.Fatalf("expected one registration row, got %d", n)
	}
}

func TestApproveRegistrationTwiceKeepsTimestamp(t *testing.T) {
	f := newFixture(t)
	ev := testkit.Event(t, f.db, "E", models.EventApproved, nil, fixedNow)
	st := testkit.Student(t, f.db, "ana")
	res, err := f.engine.Register(f.ctx, policy.Student(st.ID), ev.ID)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	first, err := f.engine.ApproveRegistration(f.ctx, policy.Admin(1), res.Registration.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	f.engine.now = func() time.Time { return fixedNow.Add(time.Hour) }
	second, err := f.engine.ApproveRegistration(f.ctx, policy.Admin(1), res.Registration.ID)
	if err != nil {
		t.Fatalf("approve again: %v", err)
	}
	if second.Status != models.RegistrationApproved {
		t.Fatalf("expected Approved, got %s", second.Status)
	}
	if !second.ApprovedAt.Equal(*first.ApprovedAt) {
		t.Fatalf("expected approved_at %s kept, got %s", first.ApprovedAt, second.ApprovedAt)
	}
	if n := f.count(t, &models.Notification{}, "student_id = ?", st.ID); n != 1 {
		t.Fatalf("expected a single approval notification, got %d", n)
	}
	if f.pub.count(st.ID) != 1 {
		t.Fatalf("expected a single push, got %d", f.pub.count(st.ID))
	}
}

func TestRejectRegistration(t *testing.T) {
	f := newFixture(t)
	ev := testkit.Event(t, f.db, "E", models.EventApproved, nil, fixedNow)
	ana := testkit.Student(t, f.db, "ana")
	bo := testkit.Student(t, f.db, "bo")
	ra, _ := f.engine.Register(f.ctx, policy.Student(ana.ID), ev.ID)
	rb, _ := f.engine.Register(f.ctx, policy.Student(bo.ID), ev.ID)
	admin := policy.Admin(1)

	got, err := f.engine.RejectRegistration(f.ctx, admin, ra.Registration.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != models.RegistrationRejected || got.ApprovedAt != nil {
		t.Fatalf("unexpected registration %+v", got)
	}
	if _, err := f.engine.RejectRegistration(f.ctx, admin, ra.Registration.ID); err != nil {
		t.Fatalf("reject again: %v", err)
	}
	if _, err := f.engine.ApproveRegistration(f.ctx, admin, ra.Registration.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected rejected registration not approvable, got %v", err)
	}

	if _, err := f.engine.ApproveRegistration(f.ctx, admin, rb.Registration.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.engine.RejectRegistration(f.ctx, admin, rb.Registration.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected approved registration not rejectable, got %v", err)
	}
	if _, err := f.engine.RejectRegistration(f.ctx, policy.Coordinator(1), rb.Registration.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected coordinator denied, got %v", err)
	}
	if _, err := f.engine.ApproveRegistration(f.ctx, admin, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegisterRequiresApprovedEvent(t *testing.T) {
	f := newFixture(t)
	st := testkit.Student(t, f.db, "ana")

	for _, status := range []models.EventStatus{models.EventProposed, models.EventRejected, models.EventCompleted} {
		ev := testkit.Event(t, f.db, string(status), status, nil, fixedNow)
		if _, err := f.engine.Register(f.ctx, policy.Student(st.ID), ev.ID); !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("expected conflict registering for %s event, got %v", status, err)
		}
	}
	past := testkit.Event(t, f.db, "Past", models.EventApproved, nil, fixedNow.AddDate(-1, 0, 0))
	if _, err := f.engine.Register(f.ctx, policy.Student(st.ID), past.ID); err != nil {
		t.Fatalf("expected past approved event to accept registration, got %v", err)
	}
	if _, err := f.engine.Register(f.ctx, policy.Student(st.ID), 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.engine.Register(f.ctx, policy.Admin(1), past.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected admin denied, got %v", err)
	}
}

func TestRegisterConcurrentlyKeepsOneRow(t *testing.T) {
	f := newFixture(t)
	ev := testkit.Event(t, f.db, "Popular", models.EventApproved, nil, fixedNow)
	st := testkit.Student(t, f.db, "ana")

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.Register(f.ctx, policy.Student(st.ID), ev.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if !res.AlreadyRegistered {
				created++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if created != 1 {
		t.Fatalf("expected exactly one new registration, got %d", created)
	}
	if n := f.count(t, &models.Registration{}, "student_id = ? AND event_id = ?", st.ID, ev.ID); n != 1 {
		t.Fatalf("expected one row, got %d", n)
	}
}

func TestRegisterAfterLosingInsertReturnsExisting(t *testing.T) {
	f := newFixture(t)
	ev := testkit.Event(t, f.db, "Popular", models.EventApproved, nil, fixedNow)
	st := testkit.Student(t, f.db, "ana")

	// Another writer stores the same pair between the lookup and the insert.
	err := f.db.Callback().Create().Before("gorm:create").Register("test:competing_registration", func(tx *gorm.DB) {
		reg, ok := tx.Statement.Dest.(*models.Registration)
		if !ok {
			return
		}
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO registrations (student_id, event_id, status, created_at) VALUES (?, ?, ?, ?)",
			reg.StudentID, reg.EventID, string(models.RegistrationApproved), fixedNow,
		)
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	res, err := f.engine.Register(f.ctx, policy.Student(st.ID), ev.ID)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !res.AlreadyRegistered {
		t.Fatal("expected the competing row to be reported as already registered")
	}
	if res.Registration.Status != models.RegistrationApproved || res.Registration.ID == 0 {
		t.Fatalf("expected the competing registration, got %+v", res.Registration)
	}
	if n := f.count(t, &models.Registration{}, "student_id = ? AND event_id = ?", st.ID, ev.ID); n != 1 {
		t.Fatalf("expected one row, got %d", n)
	}
}

func TestRegisterResultOmitsUnloadedAssociations(t *testing.T) {
	f := newFixture(t)
	ev := testkit.Event(t, f.db, "Talk", models.EventApproved, nil, fixedNow)
	st := testkit.Student(t, f.db, "ana")

	res, err := f.engine.Register(f.ctx, policy.Student(st.ID), ev.ID)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"student":`, `"event":`} {
		if strings.Contains(string(b), key) {
			t.Fatalf("expected no %s in %s", key, b)
		}
	}
}

func TestListRegistrations(t *testing.T) {
	f := newFixture(t)
	owner := testkit.Coordinator(t, f.db, "owner")
	other := testkit.Coordinator(t, f.db, "other")
	ev := testkit.Event(t, f.db, "Mine", models.EventApproved, &owner.ID, fixedNow)
	elsewhere := testkit.Event(t, f.db, "Elsewhere", models.EventApproved, nil, fixedNow)
	ana := testkit.Student(t, f.db, "ana")
	bo := testkit.Student(t, f.db, "bo")

	register := func(s models.Student, id uint) {
		t.Helper()
		if _, err := f.engine.Register(f.ctx, policy.Student(s.ID), id); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	register(ana, ev.ID)
	f.engine.now = func() time.Time { return fixedNow.Add(time.Minute) }
	register(bo, ev.ID)
	f.engine.now = func() time.Time { return fixedNow.Add(2 * time.Minute) }
	register(ana, elsewhere.ID)

	_, regs, err := f.engine.ListForEvent(f.ctx, policy.Coordinator(owner.ID), ev.ID)
	if err != nil {
		t.Fatalf("list for event: %v", err)
	}
	if len(regs) != 2 || regs[0].Student.Username != "ana" || regs[1].Student.Username != "bo" {
		t.Fatalf("expected insertion order, got %+v", regs)
	}
	if _, _, err := f.engine.ListForEvent(f.ctx, policy.Admin(1), ev.ID); err != nil {
		t.Fatalf("expected admin allowed, got %v", err)
	}
	if _, _, err := f.engine.ListForEvent(f.ctx, policy.Coordinator(other.ID), ev.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected non-owner denied, got %v", err)
	}

	all, err := f.engine.ListAll(f.ctx, policy.Admin(1))
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].EventID != elsewhere.ID {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if _, err := f.engine.ListAll(f.ctx, policy.Coordinator(owner.ID)); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected coordinator denied, got %v", err)
	}

	mine, err := f.engine.ListForStudent(f.ctx, policy.Student(ana.ID))
	if err != nil {
		t.Fatalf("list for student: %v", err)
	}
	if len(mine) != 2 || mine[0].Event.Title != "Mine" {
		t.Fatalf("unexpected student registrations %+v", mine)
	}
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t)
	owner := testkit.Coordinator(t, f.db, "owner")
	ev := testkit.Event(t, f.db, "Export", models.EventApproved, &owner.ID, fixedNow)
	names := []string{"ana", "bo", "cy"}
	for _, name := range names {
		st := testkit.Student(t, f.db, name)
		if _, err := f.engine.Register(f.ctx, policy.Student(st.ID), ev.ID); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := f.engine.ExportCSV(f.ctx, policy.Coordinator(owner.ID), ev.ID, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\r\n")
	if len(lines) != len(names)+1 {
		t.Fatalf("expected %d lines, got %d: %q", len(names)+1, len(lines), buf.String())
	}
	if lines[0] != "Student Username,Email,Registration Date,Status" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	for i, name := range names {
		want := name + "," + name + "@campus.edu,2025-01-01 09:00,Pending"
		if lines[i+1] != want {
			t.Fatalf("expected %q, got %q", want, lines[i+1])
		}
	}

	if err := f.engine.ExportCSV(f.ctx, policy.Admin(1), ev.ID, &buf); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected admin export denied, got %v", err)
	}
	other := testkit.Coordinator(t, f.db, "other")
	if err := f.engine.ExportCSV(f.ctx, policy.Coordinator(other.ID), ev.ID, &buf); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected non-owner export denied, got %v", err)
	}
}

func TestCertificate(t *testing.T) {
	f := newFixture(t)
	ev := testkit.Event(t, f.db, "Seminar", models.EventApproved, nil, fixedNow)
	st := testkit.Student(t, f.db, "ana")
	res, err := f.engine.Register(f.ctx, policy.Student(st.ID), ev.ID)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := f.engine.Certificate(f.ctx, policy.Student(st.ID), ev.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected no certificate while pending, got %v", err)
	}
	if _, err := f.engine.ApproveRegistration(f.ctx, policy.Admin(1), res.Registration.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	cert, err := f.engine.Certificate(f.ctx, policy.Student(st.ID), ev.ID)
	if err != nil {
		t.Fatalf("certificate: %v", err)
	}
	if cert.Student.Username != "ana" || cert.Event.Title != "Seminar" || !cert.IssuedAt.Equal(fixedNow) {
		t.Fatalf("unexpected certificate %+v", cert)
	}
}
