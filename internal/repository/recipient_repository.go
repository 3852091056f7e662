package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/followup-engine/internal/domain"
)

const recipientColumns = `id, name, phone, last_message_at, responded, last_response_at, created_at`

// RecipientRepository reads the leads table and writes the few engagement
// fields the engine owns.
type RecipientRepository struct {
	db *sqlx.DB
}

func NewRecipientRepository(db *sqlx.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

func (r *RecipientRepository) FindByPhone(ctx context.Context, phone string) (*domain.Recipient, error) {
	return r.findOne(ctx, `SELECT `+recipientColumns+` FROM leads WHERE phone = ?`, phone)
}

func (r *RecipientRepository) FindByID(ctx context.Context, id int64) (*domain.Recipient, error) {
	return r.findOne(ctx, `SELECT `+recipientColumns+` FROM leads WHERE id = ?`, id)
}

func (r *RecipientRepository) findOne(ctx context.Context, query string, arg any) (*domain.Recipient, error) {
	var rec domain.Recipient
	if err := r.db.GetContext(ctx, &rec, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}

	return &rec, nil
}

// Upsert returns the id of the lead with this phone, creating it when
// missing. An empty name never overwrites a stored one.
func (r *RecipientRepository) Upsert(ctx context.Context, name, phone string) (int64, error) {
	query := `
		INSERT INTO leads (name, phone) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE
			id = LAST_INSERT_ID(id),
			name = IF(VALUES(name) = '', name, VALUES(name))
	`

	result, err := r.db.ExecContext(ctx, query, name, phone)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert recipient: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get recipient id: %w", err)
	}

	return id, nil
}

func (r *RecipientRepository) TouchLastMessage(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE leads SET last_message_at = ? WHERE id = ?`, at, id); err != nil {
		return fmt.Errorf("failed to update recipient last message: %w", err)
	}
	return nil
}

func (r *RecipientRepository) MarkResponded(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE leads SET responded = TRUE, last_response_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to mark recipient as responded: %w", err)
	}
	return nil
}
