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

func createGatewayTables(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE payment_gateways (
		id TEXT PRIMARY KEY,
		code TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		provider TEXT,
		supported_currencies TEXT NOT NULL,
		supported_methods TEXT NOT NULL,
		is_active BOOLEAN NOT NULL,
		api_base_url TEXT,
		sealed_credentials TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	);`)
	mustExec(t, db, `CREATE TABLE merchant_gateways (
		id TEXT PRIMARY KEY,
		merchant_id TEXT NOT NULL,
		gateway_id TEXT NOT NULL,
		priority INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL,
		fee_percentage TEXT NOT NULL,
		fee_fixed TEXT NOT NULL,
		sub_account_id TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME,
		UNIQUE(merchant_id, gateway_id)
	);`)
}

func createTransactionTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE transactions (
		id TEXT PRIMARY KEY,
		merchant_id TEXT NOT NULL,
		reference TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL,
		gateway_id TEXT,
		gateway_code TEXT,
		gateway_transaction_id TEXT,
		redirect_url TEXT,
		fees TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		refunded_amount TEXT NOT NULL,
		customer TEXT,
		metadata TEXT,
		error_message TEXT,
		processed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	);`)
}

func createRoutingTables(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE routing_rules (
		id TEXT PRIMARY KEY,
		merchant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		rule_type TEXT NOT NULL,
		conditions TEXT NOT NULL,
		actions TEXT NOT NULL,
		priority INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL,
		valid_from DATETIME,
		valid_until DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	);`)
	mustExec(t, db, `CREATE TABLE routing_attempts (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		attempt_number INTEGER NOT NULL,
		gateway_id TEXT,
		gateway_code TEXT,
		status TEXT NOT NULL,
		error_message TEXT,
		latency_ms INTEGER NOT NULL,
		score TEXT NOT NULL,
		score_breakdown TEXT,
		request_payload TEXT,
		response_payload TEXT,
		created_at DATETIME
	);`)
	mustExec(t, db, `CREATE TABLE gateway_health_metrics (
		id TEXT PRIMARY KEY,
		gateway_id TEXT NOT NULL,
		success_rate TEXT NOT NULL,
		avg_latency_ms INTEGER NOT NULL,
		sample_count INTEGER NOT NULL,
		window_start DATETIME,
		window_end DATETIME,
		created_at DATETIME
	);`)
}

func createWebhookTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE webhooks (
		id TEXT PRIMARY KEY,
		gateway_code TEXT NOT NULL,
		gateway_id TEXT,
		transaction_id TEXT,
		event_type TEXT,
		gateway_transaction_id TEXT,
		raw_payload TEXT NOT NULL,
		headers TEXT,
		processed BOOLEAN NOT NULL,
		processing_error TEXT,
		processed_at DATETIME,
		created_at DATETIME
	);`)
}
