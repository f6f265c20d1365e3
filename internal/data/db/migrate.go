package db

import (
	"fmt"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(types.AllModels()...)
}

// EnsureNegotiationIndexes installs the partial unique index backing the
// one-active-session-per-proposal rule. Both postgres and sqlite accept the syntax.
func EnsureNegotiationIndexes(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}
	stmts := []string{
		`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_negotiation_session_one_active
		ON negotiation_session (proposal_id)
		WHERE status IN ('open', 'awaiting_response', 'responded');
		`,
		`
		CREATE INDEX IF NOT EXISTS idx_negotiation_session_status_updated
		ON negotiation_session (status, updated_at);
		`,
		`
		CREATE INDEX IF NOT EXISTS idx_proposal_project_status_submitted
		ON proposal (project_id, status, submitted_at);
		`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
