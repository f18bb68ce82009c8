package util

import "testing"

func TestMin(t *testing.T) {
	if got := Min(3, 7); got != 3 {
		t.Fatalf("Min(3, 7) = %d, want 3", got)
	}
	if got := Min(uintptr(9), uintptr(2)); got != 2 {
		t.Fatalf("Min(9, 2) = %d, want 2", got)
	}
}

func TestRounddown(t *testing.T) {
	cases := []struct{ v, b, want uintptr }{
		{0, 8, 0},
		{1, 8, 0},
		{8, 8, 8},
		{9, 8, 8},
		{4095, 4096, 0},
	}
	for _, c := range cases {
		if got := Rounddown(c.v, c.b); got != c.want {
			t.Errorf("Rounddown(%d, %d) = %d, want %d", c.v, c.b, got, c.want)
		}
	}
}

func TestRoundup(t *testing.T) {
	cases := []struct{ v, b, want uintptr }{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{4096, 4096, 4096},
		{4097, 4096, 8192},
	}
	for _, c := range cases {
		if got := Roundup(c.v, c.b); got != c.want {
			t.Errorf("Roundup(%d, %d) = %d, want %d", c.v, c.b, got, c.want)
		}
	}
}
