package policy

import "testing"

func TestAllows(t *testing.T) {
	cases := []struct {
		role string
		c    Capability
		want bool
	}{
		{"hospital_admin", ViewHospitalDashboards, true},
		{"Super_Admin", ViewHospitalDashboards, true},
		{"doctor", ViewHospitalDashboards, false},
		{"doctor", UpdateHospitalStatus, false},
		{"org_admin", UpdateHospitalStatus, true},
		{"", ViewHospitalDashboards, false},
		{"doctor", Capability("unknown"), false},
	}
	for _, tc := range cases {
		if got := Allows(tc.role, tc.c); got != tc.want {
			t.Fatalf("Allows(%q, %q) = %v, want %v", tc.role, tc.c, got, tc.want)
		}
	}
}
