package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/phoenix-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestInvoiceMigrationGuardsCheckoutSession(t *testing.T) {
	content := readMigration(t, "create_invoices")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS invoices",
		"CONSTRAINT invoices_invoice_number_key UNIQUE (invoice_number)",
		"WHERE checkout_session_id IS NOT NULL AND status <> 'cancelled'",
		"DROP TABLE IF EXISTS invoices",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestProviderInvoiceSettledOnce(t *testing.T) {
	content := readMigration(t, "add_invoice_provider_invoice_id")
	for _, sub := range []string{
		"ADD COLUMN IF NOT EXISTS provider_invoice_id TEXT",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_paid_provider_invoice",
		"WHERE provider_invoice_id IS NOT NULL AND status = 'paid'",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLedgerMigrationsCarryUniqueKeys(t *testing.T) {
	cases := map[string]string{
		"create_client_subscriptions": "UNIQUE (external_subscription_id)",
		"create_storage_quotas":       "UNIQUE (client_id)",
		"create_users":                "UNIQUE (email)",
	}
	for file, sub := range cases {
		if !strings.Contains(readMigration(t, file), sub) {
			t.Errorf("%s: missing %q", file, sub)
		}
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Invoice Notes")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_invoice_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}
