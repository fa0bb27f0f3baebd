package service

import (
	"context"
	"testing"
	"time"
)

func TestRandomItemIDShape(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := RandomItemID()
		if !ValidItemID(id) {
			t.Fatalf("RandomItemID() = %q, want one letter and four digits", id)
		}
	}
}

func TestNormalizeItemID(t *testing.T) {
	tests := map[string]string{
		"a1234":   "A1234",
		" b0007 ": "B0007",
		"Z9999":   "Z9999",
	}
	for in, want := range tests {
		if got := NormalizeItemID(in); got != want {
			t.Errorf("NormalizeItemID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidItemID(t *testing.T) {
	for _, id := range []string{"", "A123", "A12345", "11234", "AB123", "a1234"} {
		if ValidItemID(id) {
			t.Errorf("ValidItemID(%q) = true, want false", id)
		}
	}
}

func TestMemoryConfirmations(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryConfirmations()
	m.now = func() time.Time { return now }

	if err := m.Put(ctx, "tok", time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err := m.Take(ctx, "tok")
	if err != nil || !ok {
		t.Fatalf("Take = %v, %v; want true", ok, err)
	}
	if ok, _ := m.Take(ctx, "tok"); ok {
		t.Error("token was accepted twice")
	}

	m.Put(ctx, "late", time.Minute)
	now = now.Add(2 * time.Minute)
	if ok, _ := m.Take(ctx, "late"); ok {
		t.Error("expired token was accepted")
	}
}
