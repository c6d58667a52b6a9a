package roles

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"patient", Patient, false},
		{"Lab", Lab, false},
		{"  RESEARCHER  ", Researcher, false},
		{"", "", true},
		{"admin", "", true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownRole) {
				t.Errorf("Parse(%q) error = %v, want ErrUnknownRole", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestCapabilities(t *testing.T) {
	// Every role may vote on admissions for its own role.
	for _, role := range All() {
		if !Can(role, CapVote) {
			t.Errorf("role %s should carry CapVote", role)
		}
	}

	if !Can(Lab, CapUploadRecord) {
		t.Error("lab should carry CapUploadRecord")
	}
	if Can(Patient, CapUploadRecord) {
		t.Error("patient should not carry CapUploadRecord")
	}
	if !Can(Researcher, CapRequestAccess) {
		t.Error("researcher should carry CapRequestAccess")
	}
	if !Can(Patient, CapDecideConsent) {
		t.Error("patient should carry CapDecideConsent")
	}
	if Can(Researcher, CapDecideConsent) {
		t.Error("researcher should not carry CapDecideConsent")
	}
}

func TestValid(t *testing.T) {
	if !Valid(Lab) {
		t.Error("Valid(Lab) = false")
	}
	if Valid(Role("broker")) {
		t.Error("Valid(broker) = true")
	}
}
