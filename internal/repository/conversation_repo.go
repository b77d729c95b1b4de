package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/NdodaEnde/Telehealth-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

const conversationColumns = `
	id, patient_id, patient_name, receptionist_id, receptionist_name,
	status, patient_type, booking_id, last_message, last_message_at,
	unread_count, created_at, updated_at
`

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conversation models.Conversation
	err := row.Scan(
		&conversation.ID,
		&conversation.PatientID,
		&conversation.PatientName,
		&conversation.ReceptionistID,
		&conversation.ReceptionistName,
		&conversation.Status,
		&conversation.PatientType,
		&conversation.BookingID,
		&conversation.LastMessage,
		&conversation.LastMessageAt,
		&conversation.UnreadCount,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *ConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	query := `
		INSERT INTO conversations (
			id, patient_id, patient_name, status, last_message, last_message_at, unread_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(
		ctx,
		query,
		conversation.ID,
		conversation.PatientID,
		conversation.PatientName,
		conversation.Status,
		conversation.LastMessage,
		conversation.LastMessageAt,
		conversation.UnreadCount,
	).Scan(&conversation.CreatedAt, &conversation.UpdatedAt)
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	return scanConversation(r.db.QueryRow(ctx, query, conversationID))
}

// ConversationFilter narrows List. Zero values mean "no constraint".
type ConversationFilter struct {
	PatientID      string
	ReceptionistID string
	UnassignedOnly bool
	Status         string
	ExcludeClosed  bool
	Limit          int
}

func (r *ConversationRepository) List(ctx context.Context, filter ConversationFilter) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE TRUE`
	args := []any{}

	if filter.PatientID != "" {
		args = append(args, filter.PatientID)
		query += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if filter.ReceptionistID != "" {
		args = append(args, filter.ReceptionistID)
		query += fmt.Sprintf(" AND receptionist_id = $%d", len(args))
	}
	if filter.UnassignedOnly {
		query += " AND receptionist_id IS NULL"
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.ExcludeClosed {
		args = append(args, models.StatusClosed)
		query += fmt.Sprintf(" AND status <> $%d", len(args))
	}

	if filter.UnassignedOnly {
		query += " ORDER BY created_at ASC"
	} else {
		query += " ORDER BY updated_at DESC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conversation)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return conversations, nil
}

// Claim assigns a receptionist to a still-unassigned conversation. Returns
// false when another receptionist won the race.
func (r *ConversationRepository) Claim(
	ctx context.Context,
	conversationID string,
	receptionistID string,
	receptionistName string,
) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET receptionist_id = $2,
		    receptionist_name = $3,
		    status = $4,
		    updated_at = NOW()
		WHERE id = $1 AND receptionist_id IS NULL
	`, conversationID, receptionistID, receptionistName, models.StatusActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ConversationRepository) Reassign(
	ctx context.Context,
	conversationID string,
	receptionistID string,
	receptionistName string,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET receptionist_id = $2,
		    receptionist_name = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, conversationID, receptionistID, receptionistName)
	return err
}

func (r *ConversationRepository) UpdateStatus(ctx context.Context, conversationID, status string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, conversationID, status)
	return err
}

func (r *ConversationRepository) UpdatePatientType(ctx context.Context, conversationID, patientType string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET patient_type = $2, updated_at = NOW()
		WHERE id = $1
	`, conversationID, patientType)
	return err
}

// TouchPreview records the latest message preview and bumps the unread
// counter in one statement.
func (r *ConversationRepository) TouchPreview(
	ctx context.Context,
	conversationID string,
	preview string,
	at time.Time,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message = $2,
		    last_message_at = $3,
		    unread_count = unread_count + 1,
		    updated_at = NOW()
		WHERE id = $1
	`, conversationID, preview, at)
	return err
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, conversationID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET unread_count = 0
		WHERE id = $1
	`, conversationID)
	return err
}

func (r *ConversationRepository) Stats(ctx context.Context, receptionistID string) (*models.ChatStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE receptionist_id IS NULL AND status <> $1),
			COUNT(*) FILTER (WHERE receptionist_id = $2 AND status <> $1),
			COUNT(*) FILTER (WHERE status NOT IN ($1, $3))
		FROM conversations
	`
	var stats models.ChatStats
	err := r.db.QueryRow(ctx, query, models.StatusClosed, receptionistID, models.StatusConsultationComplete).
		Scan(&stats.UnassignedCount, &stats.MyChatsCount, &stats.TotalActive)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
