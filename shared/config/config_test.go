package config

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("AUCTION_TEST_ADDR", ":9090")

	if got := GetEnv("AUCTION_TEST_ADDR", ":8080"); got != ":9090" {
		t.Errorf("GetEnv = %q, want %q", got, ":9090")
	}
	if got := GetEnv("AUCTION_TEST_MISSING", ":8080"); got != ":8080" {
		t.Errorf("GetEnv default = %q, want %q", got, ":8080")
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("AUCTION_TEST_INT", "7")
	t.Setenv("AUCTION_TEST_BAD_INT", "seven")

	if got := GetEnvInt("AUCTION_TEST_INT", 1); got != 7 {
		t.Errorf("GetEnvInt = %d, want 7", got)
	}
	if got := GetEnvInt("AUCTION_TEST_BAD_INT", 1); got != 1 {
		t.Errorf("GetEnvInt malformed = %d, want 1", got)
	}
}

func TestGetEnvDurationAndBool(t *testing.T) {
	t.Setenv("AUCTION_TEST_TTL", "90s")
	t.Setenv("AUCTION_TEST_FLAG", "true")

	if got := GetEnvDuration("AUCTION_TEST_TTL", time.Minute); got != 90*time.Second {
		t.Errorf("GetEnvDuration = %v, want 90s", got)
	}
	if got := GetEnvBool("AUCTION_TEST_FLAG", false); !got {
		t.Error("GetEnvBool = false, want true")
	}
}

func TestGetEnvInt64List(t *testing.T) {
	t.Setenv("AUCTION_TEST_ADMINS", "101, 202,,abc,303")

	got := GetEnvInt64List("AUCTION_TEST_ADMINS")
	want := []int64{101, 202, 303}
	if len(got) != len(want) {
		t.Fatalf("GetEnvInt64List len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GetEnvInt64List[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if got := GetEnvInt64List("AUCTION_TEST_NO_ADMINS"); got != nil {
		t.Errorf("GetEnvInt64List unset = %v, want nil", got)
	}
}
