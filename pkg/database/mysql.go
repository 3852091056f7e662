package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/followup-engine/environments"
	"github.com/onurcolak/followup-engine/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database %s", cfg.DBName)
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS leads (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(20) NOT NULL,
		last_message_at DATETIME(3) NULL,
		responded BOOLEAN NOT NULL DEFAULT FALSE,
		last_response_at DATETIME(3) NULL,
		created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_leads_phone (phone)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS follow_ups (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		recipient_id BIGINT NOT NULL,
		recipient_phone VARCHAR(20) NOT NULL,
		kind VARCHAR(64) NOT NULL DEFAULT '',
		channel VARCHAR(16) NOT NULL DEFAULT 'manual',
		body TEXT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
		cadence JSON NULL,
		scheduled_at DATETIME(3) NULL,
		next_run_at DATETIME(3) NULL,
		sent_at DATETIME(3) NULL,
		gateway_message_id VARCHAR(128) NULL,
		last_error VARCHAR(255) NULL,
		response_received BOOLEAN NOT NULL DEFAULT FALSE,
		responded_at DATETIME(3) NULL,
		claim_token CHAR(36) NULL,
		claimed_at DATETIME(3) NULL,
		created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		INDEX idx_follow_ups_one_shot_due (status, is_recurring, scheduled_at),
		INDEX idx_follow_ups_recurring_due (status, is_recurring, next_run_at),
		INDEX idx_follow_ups_correlation (recipient_id, response_received, sent_at),
		INDEX idx_follow_ups_phone (recipient_phone, created_at),
		CONSTRAINT fk_follow_ups_lead FOREIGN KEY (recipient_id) REFERENCES leads (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

func RunMigrations(db *sqlx.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", i+1, err)
		}
	}

	logger.Infof("Database migrations completed (%d statements)", len(migrations))

	return nil
}

// SeedTestData inserts demo leads with one due one-shot and one recurring
// follow-up each. It is a no-op when leads already exist.
func SeedTestData(db *sqlx.DB) error {
	var count int

	if err := db.Get(&count, "SELECT COUNT(*) FROM leads"); err != nil {
		return fmt.Errorf("failed to count leads: %w", err)
	}

	if count > 0 {
		logger.Infof("Database already has %d leads, skipping seed", count)
		return nil
	}

	testLeads := []struct {
		name  string
		phone string
		kind  string
		body  string
	}{
		{"Ana Souza", "5511987654321", "appointment_reminder", "Olá Ana! Lembrete da sua consulta amanhã às 10h."},
		{"Bruno Lima", "5511912345678", "post_visit", "Olá Bruno, como você está se sentindo após a consulta?"},
		{"Carla Mendes", "5521998877665", "quote_unanswered", "Carla, conseguiu avaliar o orçamento que enviamos?"},
		{"Diego Rocha", "5531977776666", "reactivation", "Diego, faz tempo que não nos vemos! Vamos agendar um retorno?"},
	}

	now := time.Now().UTC()
	weekly := `{"every":1,"unit":"week"}`

	for _, l := range testLeads {
		res, err := db.Exec("INSERT INTO leads (name, phone) VALUES (?, ?)", l.name, l.phone)
		if err != nil {
			return fmt.Errorf("failed to seed lead: %w", err)
		}

		leadID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read lead id: %w", err)
		}

		_, err = db.Exec(
			`INSERT INTO follow_ups (recipient_id, recipient_phone, kind, channel, body, status, is_recurring, scheduled_at)
			 VALUES (?, ?, ?, 'automatic', ?, 'pending', FALSE, ?)`,
			leadID, l.phone, l.kind, l.body, now.Add(-time.Minute),
		)
		if err != nil {
			return fmt.Errorf("failed to seed one-shot follow-up: %w", err)
		}

		_, err = db.Exec(
			`INSERT INTO follow_ups (recipient_id, recipient_phone, kind, channel, body, status, is_recurring, cadence, next_run_at)
			 VALUES (?, ?, 'reactivation', 'template', ?, 'pending', TRUE, ?, ?)`,
			leadID, l.phone, "Passando para lembrar que estamos à disposição!", weekly, now.Add(24*time.Hour),
		)
		if err != nil {
			return fmt.Errorf("failed to seed recurring follow-up: %w", err)
		}
	}

	logger.Infof("Seeded %d test leads with follow-ups", len(testLeads))
	return nil
}
