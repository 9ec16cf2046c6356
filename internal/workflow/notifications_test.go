package workflow

import (
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"

	"campus-portal/internal/apperr"
	"campus-portal/internal/models"
	"campus-portal/internal/policy"
	"campus-portal/internal/testkit"
)

func TestNotificationsMarkedReadOnList(t *testing.T) {
	f := newFixture(t)
	ev := testkit.Event(t, f.db, "Talk", models.EventApproved, nil, fixedNow)
	st := testkit.Student(t, f.db, "ana")
	p := policy.Student(st.ID)

	res, err := f.engine.Register(f.ctx, p, ev.ID)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.engine.ApproveRegistration(f.ctx, policy.Admin(1), res.Registration.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	unread, err := f.engine.UnreadNotifications(f.ctx, p)
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if len(unread) != 1 || !strings.Contains(unread[0].Message, "Talk") {
		t.Fatalf("expected approval notification, got %+v", unread)
	}

	all, err := f.engine.ListNotifications(f.ctx, p)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].IsRead {
		t.Fatalf("expected one notification returned as unread, got %+v", all)
	}

	unread, err = f.engine.UnreadNotifications(f.ctx, p)
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected all read after listing, got %d", len(unread))
	}

	if _, err := f.engine.ListNotifications(f.ctx, policy.Admin(1)); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected admin denied, got %v", err)
	}
}

func TestNotifyClipsLongMessages(t *testing.T) {
	f := newFixture(t)
	st := testkit.Student(t, f.db, "ana")

	var box outbox
	if err := notify(f.db, &box, st.ID, strings.Repeat("x", 600)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	var n models.Notification
	if err := f.db.Where("student_id = ?", st.ID).First(&n).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(n.Message) != maxMessageLen {
		t.Fatalf("expected %d chars, got %d", maxMessageLen, len(n.Message))
	}
	if len(box) != 1 || box[0].studentID != st.ID {
		t.Fatalf("expected queued push, got %+v", box)
	}
}

func TestFailedTransactionPublishesNothing(t *testing.T) {
	f := newFixture(t)
	st := testkit.Student(t, f.db, "ana")

	boom := errors.New("boom")
	err := f.engine.transact(f.ctx, func(tx *gorm.DB, box *outbox) error {
		if err := notify(tx, box, st.ID, "never"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if f.pub.count(st.ID) != 0 {
		t.Fatalf("expected no push after rollback, got %d", f.pub.count(st.ID))
	}
	if n := f.count(t, &models.Notification{}, "student_id = ?", st.ID); n != 0 {
		t.Fatalf("expected rollback, got %d rows", n)
	}
}
