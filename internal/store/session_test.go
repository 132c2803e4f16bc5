package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/airlink/internal/model"
)

func seedLicense(t *testing.T, ls *LicenseStore, code string) *model.License {
	t.Helper()
	l, err := ls.Create(context.Background(), code, 60, 10, t0)
	if err != nil {
		t.Fatalf("create license: %v", err)
	}
	return l
}

func TestSessionCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ls, ss := NewLicenseStore(db), NewSessionStore(db)
	l := seedLicense(t, ls, "A")

	s, err := ss.Create(ctx, l.ID, "ABC123", t0, t0.Add(time.Hour), 25)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !s.IsActive || s.EndedAt != nil {
		t.Error("new session should be active and not ended")
	}
	if s.MaxListeners != 25 {
		t.Errorf("max listeners = %d, want 25", s.MaxListeners)
	}

	got, err := ss.GetActiveByPIN(ctx, "ABC123")
	if err != nil {
		t.Fatalf("get by pin: %v", err)
	}
	if got == nil || got.ID != s.ID {
		t.Fatalf("get by pin = %+v", got)
	}
	inUse, _ := ss.PINInUse(ctx, "ABC123")
	if !inUse {
		t.Error("pin should be in use")
	}
}

func TestSessionActivePINUnique(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ls, ss := NewLicenseStore(db), NewSessionStore(db)
	a := seedLicense(t, ls, "A")
	b := seedLicense(t, ls, "B")

	first, _ := ss.Create(ctx, a.ID, "ABC123", t0, t0.Add(time.Hour), 10)
	if _, err := ss.Create(ctx, b.ID, "ABC123", t0, t0.Add(time.Hour), 10); err == nil {
		t.Fatal("expected unique violation for a second active session with the same pin")
	}

	ss.MarkInactive(ctx, first.ID)
	if _, err := ss.Create(ctx, b.ID, "ABC123", t0, t0.Add(time.Hour), 10); err != nil {
		t.Fatalf("pin should be reusable once released: %v", err)
	}
}

func TestSessionEndOnce(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ls, ss := NewLicenseStore(db), NewSessionStore(db)
	l := seedLicense(t, ls, "A")
	s, _ := ss.Create(ctx, l.ID, "ABC123", t0, t0.Add(time.Hour), 10)

	ok, err := ss.End(ctx, s.ID, t0.Add(time.Minute), "manual")
	if err != nil || !ok {
		t.Fatalf("end = %v, %v", ok, err)
	}
	ok, _ = ss.End(ctx, s.ID, t0.Add(2*time.Minute), "auto")
	if ok {
		t.Error("second end should be a no-op")
	}

	got, _ := ss.GetByID(ctx, s.ID)
	if got.IsActive {
		t.Error("ended session should be inactive")
	}
	if got.EndReason == nil || *got.EndReason != "manual" {
		t.Errorf("end reason = %v, want manual", got.EndReason)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("ended_at = %v, want %v", got.EndedAt, t0.Add(time.Minute))
	}
}

func TestSessionListExpired(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ls, ss := NewLicenseStore(db), NewSessionStore(db)
	l := seedLicense(t, ls, "A")

	expired, _ := ss.Create(ctx, l.ID, "AAAAAA", t0, t0.Add(time.Minute), 10)
	lazy, _ := ss.Create(ctx, l.ID, "BBBBBB", t0, t0.Add(2*time.Minute), 10)
	ss.MarkInactive(ctx, lazy.ID)
	ended, _ := ss.Create(ctx, l.ID, "CCCCCC", t0, t0.Add(time.Minute), 10)
	ss.End(ctx, ended.ID, t0, "manual")
	ss.Create(ctx, l.ID, "DDDDDD", t0, t0.Add(time.Hour), 10)

	got, err := ss.ListExpired(ctx, t0.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expired count = %d, want 2", len(got))
	}
	if got[0].ID != expired.ID || got[1].ID != lazy.ID {
		t.Errorf("expired ids = %s, %s", got[0].ID, got[1].ID)
	}
}
