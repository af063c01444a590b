package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	return db
}

func mustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

func createWalletTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE wallets (
		id TEXT PRIMARY KEY,
		chain TEXT NOT NULL,
		network TEXT NOT NULL,
		public_key TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		owner_address TEXT,
		owner_verified BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	);`)
}

func createTransactionTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE transactions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		amount TEXT NOT NULL,
		to_address TEXT NOT NULL,
		token_address TEXT,
		spender_address TEXT,
		selector TEXT,
		tier TEXT,
		tx_hash TEXT,
		error_message TEXT,
		retryable BOOLEAN NOT NULL DEFAULT 0,
		batch_items TEXT,
		reserved_amount TEXT,
		amount_usd REAL,
		queued_at DATETIME,
		executed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	);`)
}

func createPolicyTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE policies (
		id TEXT PRIMARY KEY,
		wallet_id TEXT,
		type TEXT NOT NULL,
		rules TEXT NOT NULL DEFAULT '{}',
		priority INTEGER NOT NULL DEFAULT 0,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	);`)
}

func createPendingApprovalTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE pending_approvals (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL UNIQUE,
		wallet_id TEXT NOT NULL,
		tier TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		release_at DATETIME NOT NULL,
		approved_by TEXT,
		approved_at DATETIME,
		rejected_at DATETIME,
		created_at DATETIME
	);`)
}

func createAuditLogTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE audit_logs (
		id TEXT PRIMARY KEY,
		wallet_id TEXT,
		transaction_id TEXT,
		action TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME
	);`)
}

func createAllTables(t *testing.T, db *gorm.DB) {
	createWalletTable(t, db)
	createTransactionTable(t, db)
	createPolicyTable(t, db)
	createPendingApprovalTable(t, db)
	createAuditLogTable(t, db)
}
