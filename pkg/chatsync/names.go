package chatsync

import "strings"

// SenderDisplayName resolves a display name for a push-delivered message whose
// payload did not carry one. Patients resolve to the conversation's known
// patient name and staff to the known receptionist name; when neither is
// known a generic role label stands in.
func SenderDisplayName(role, patientName, staffName string) string {
	switch role {
	case "patient":
		if patientName != "" {
			return patientName
		}
	case "system":
		return "System"
	default:
		if staffName != "" {
			return staffName
		}
	}
	return roleLabel(role)
}

func roleLabel(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return "Unknown"
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
