package models

import "time"

// Conversation statuses follow the receptionist workflow. Transition legality
// is not enforced: any known status may be written by a permitted actor.
const (
	StatusNew                  = "new"
	StatusActive               = "active"
	StatusBookingPending       = "booking_pending"
	StatusBooked               = "booked"
	StatusConsultationComplete = "consultation_complete"
	StatusClosed               = "closed"
)

const (
	MessageTypeText                = "text"
	MessageTypeImage               = "image"
	MessageTypeFile                = "file"
	MessageTypeSystem              = "system"
	MessageTypeBookingConfirmation = "booking_confirmation"
)

// Patient billing categories.
const (
	PatientTypeMedicalAid        = "medical_aid"
	PatientTypeCampusAfrica      = "campus_africa"
	PatientTypeUniversityStudent = "university_student"
	PatientTypeCash              = "cash"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusNew, StatusActive, StatusBookingPending, StatusBooked,
		StatusConsultationComplete, StatusClosed:
		return true
	}
	return false
}

func ValidMessageType(messageType string) bool {
	switch messageType {
	case MessageTypeText, MessageTypeImage, MessageTypeFile,
		MessageTypeSystem, MessageTypeBookingConfirmation:
		return true
	}
	return false
}

func ValidPatientType(patientType string) bool {
	switch patientType {
	case PatientTypeMedicalAid, PatientTypeCampusAfrica,
		PatientTypeUniversityStudent, PatientTypeCash:
		return true
	}
	return false
}

// Conversation is a patient-to-staff chat thread. Participant display names
// are denormalized onto the row so list views never join against profiles.
type Conversation struct {
	ID               string     `json:"id"`
	PatientID        string     `json:"patient_id"`
	PatientName      string     `json:"patient_name"`
	ReceptionistID   *string    `json:"receptionist_id"`
	ReceptionistName *string    `json:"receptionist_name"`
	Status           string     `json:"status"`
	PatientType      *string    `json:"patient_type"`
	BookingID        *string    `json:"booking_id"`
	LastMessage      *string    `json:"last_message"`
	LastMessageAt    *time.Time `json:"last_message_at"`
	UnreadCount      int        `json:"unread_count"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type ChatMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	SenderName     string     `json:"sender_name"`
	SenderRole     string     `json:"sender_role"`
	Content        string     `json:"content"`
	MessageType    string     `json:"message_type"`
	FileURL        *string    `json:"file_url"`
	FileName       *string    `json:"file_name"`
	FileSize       *int64     `json:"file_size"`
	ReadAt         *time.Time `json:"read_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ChatStats backs the receptionist dashboard counters.
type ChatStats struct {
	UnassignedCount int `json:"unassigned_count"`
	MyChatsCount    int `json:"my_chats_count"`
	TotalActive     int `json:"total_active"`
}
