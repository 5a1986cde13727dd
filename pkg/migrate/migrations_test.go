package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/cardhold-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func TestDepositsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_deposits.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS deposits",
		"CHECK (hold_amount_cents > 0)",
		"CHECK (captured_amount_cents + released_amount_cents <= hold_amount_cents)",
		"CHECK (refunded_amount_cents <= captured_amount_cents)",
		"revision BIGINT NOT NULL DEFAULT 0",
		"idempotency_key TEXT UNIQUE",
		"DROP TABLE IF EXISTS deposits",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestNotificationsMigrationIsAppendOnlyLog(t *testing.T) {
	content := readMigration(t, "*_create_notifications.sql")

	checks := []string{
		"seq BIGSERIAL PRIMARY KEY",
		"event_id UUID NOT NULL UNIQUE",
		"FOREIGN KEY (deposit_id) REFERENCES deposits(id) ON DELETE RESTRICT",
		"DROP TABLE IF EXISTS notifications",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestRetryQueueMigrationLinksNotification(t *testing.T) {
	content := readMigration(t, "*_create_webhook_retry_entries.sql")

	checks := []string{
		"notification_seq BIGINT NOT NULL UNIQUE",
		"FOREIGN KEY (notification_seq) REFERENCES notifications(seq) ON DELETE CASCADE",
		"idx_webhook_retry_entries_next_attempt_at",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
