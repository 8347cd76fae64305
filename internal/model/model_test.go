package model

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"/DCIM/Camera/img.jpg", "DCIM/Camera/img.jpg"},
		{"DCIM/Camera/img.jpg", "DCIM/Camera/img.jpg"},
		{".", ""},
		{"", ""},
		{"a/./b", "a/b"},
		{"a/../b", "b"},
		{"a\\b\\c", "a/b/c"},
		{"///a///b///", "a/b"},
	}

	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.expected {
			t.Errorf("NormalizePath(%q) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}

func TestMtimeWithinTolerance(t *testing.T) {
	tests := []struct {
		a, b      int64
		tolerance int64
		expected  bool
	}{
		{100, 100, 1, true},
		{100, 101, 1, true},
		{100, 102, 1, false},
		{100, 102, 2, true},
		{102, 100, 1, false},
	}

	for _, tt := range tests {
		if got := MtimeWithinTolerance(tt.a, tt.b, tt.tolerance); got != tt.expected {
			t.Errorf("MtimeWithinTolerance(%d, %d, %d) = %v, expected %v", tt.a, tt.b, tt.tolerance, got, tt.expected)
		}
	}
}
