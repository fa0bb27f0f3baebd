package service

import "testing"

func TestRequiredIncrement(t *testing.T) {
	tests := []struct {
		price int64
		want  int64
	}{
		{1, 1000},
		{10000, 1000},
		{19999, 1000},
		{20000, 2000},
		{25000, 2000},
		{49999, 2000},
		{50000, 5000},
		{60000, 5000},
		{1000000, 5000},
	}

	for _, tt := range tests {
		if got := RequiredIncrement(tt.price); got != tt.want {
			t.Errorf("RequiredIncrement(%d) = %d, want %d", tt.price, got, tt.want)
		}
	}
}

func TestMinimumBid(t *testing.T) {
	tests := []struct {
		price int64
		want  int64
	}{
		{10000, 11000},
		{19000, 20000},
		// The band follows the current price, not the amount being offered
		{19500, 20500},
		{25000, 27000},
		{48000, 50000},
		{65000, 70000},
	}

	for _, tt := range tests {
		if got := MinimumBid(tt.price); got != tt.want {
			t.Errorf("MinimumBid(%d) = %d, want %d", tt.price, got, tt.want)
		}
	}
}
