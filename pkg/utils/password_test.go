package utils

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("expected hashing to succeed, got error: %v", err)
	}
	if hash == "" || hash == "correct-horse" {
		t.Fatalf("expected an opaque hash, got %q", hash)
	}

	tests := []struct {
		name     string
		password string
		hash     string
		want     bool
	}{
		{"matching password", "correct-horse", hash, true},
		{"wrong password", "battery-staple", hash, false},
		{"empty password against real hash", "", hash, false},
		{"malformed hash", "correct-horse", "not-a-valid-bcrypt-hash", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckPassword(tt.password, tt.hash); got != tt.want {
				t.Fatalf("CheckPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}
