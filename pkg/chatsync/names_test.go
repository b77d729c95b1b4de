package chatsync

import "testing"

func TestSenderDisplayName(t *testing.T) {
	cases := []struct {
		name        string
		role        string
		patientName string
		staffName   string
		want        string
	}{
		{"patient with known name", "patient", "Thandi M", "Sister Naledi", "Thandi M"},
		{"patient without known name", "patient", "", "Sister Naledi", "Patient"},
		{"system always generic", "system", "Thandi M", "Sister Naledi", "System"},
		{"nurse with known staff name", "nurse", "Thandi M", "Sister Naledi", "Sister Naledi"},
		{"nurse without known staff name", "nurse", "Thandi M", "", "Nurse"},
		{"admin falls back to role label", "admin", "", "", "Admin"},
		{"empty role", "", "", "", "Unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SenderDisplayName(tc.role, tc.patientName, tc.staffName)
			if got != tc.want {
				t.Errorf("SenderDisplayName(%q, %q, %q) = %q, want %q",
					tc.role, tc.patientName, tc.staffName, got, tc.want)
			}
		})
	}
}
