package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/paygrid/disburse/cache"
	"github.com/paygrid/disburse/config"

	_ "github.com/lib/pq"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		queryCache, errCache := cache.NewCache()
		if errCache != nil {
			log.Printf("query cache disabled: %v", errCache)
			queryCache = nil
		}
		instance = &Datasource{Conn: con, Cache: queryCache}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database connection error: %v", err)
		return nil, err
	}
	if err := createSchema(db); err != nil {
		return nil, err
	}
	if err := createPayeeTable(db); err != nil {
		return nil, err
	}
	if err := createCommissionTable(db); err != nil {
		return nil, err
	}
	if err := createPaymentBatchTable(db); err != nil {
		return nil, err
	}
	if err := createDisbursementTransactionTable(db); err != nil {
		return nil, err
	}
	if err := createWebhookEventTable(db); err != nil {
		return nil, err
	}
	if err := createAuditLogTable(db); err != nil {
		return nil, err
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS disburse`)
	return err
}

func createPayeeTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS disburse.payees (
			id SERIAL PRIMARY KEY,
			payee_account_id TEXT NOT NULL UNIQUE,
			affiliate_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			email TEXT,
			provider_ref TEXT,
			kyc_status TEXT NOT NULL DEFAULT 'PENDING',
			pending_balance BIGINT NOT NULL DEFAULT 0,
			paid_balance BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	return err
}

func createCommissionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS disburse.commissions (
			id SERIAL PRIMARY KEY,
			commission_id TEXT NOT NULL UNIQUE,
			affiliate_id TEXT NOT NULL REFERENCES disburse.payees(affiliate_id),
			amount BIGINT NOT NULL CHECK (amount > 0),
			currency TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			batch_id TEXT,
			earned_at TIMESTAMP NOT NULL,
			paid_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	return err
}

func createPaymentBatchTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS disburse.payment_batches (
			id SERIAL PRIMARY KEY,
			batch_id TEXT NOT NULL UNIQUE,
			currency TEXT NOT NULL,
			total_amount BIGINT NOT NULL,
			transaction_count INT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMP,
			meta_data JSONB
		)
	`)
	return err
}

func createDisbursementTransactionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS disburse.disbursement_transactions (
			id SERIAL PRIMARY KEY,
			transaction_id TEXT NOT NULL UNIQUE,
			batch_id TEXT NOT NULL REFERENCES disburse.payment_batches(batch_id),
			commission_id TEXT NOT NULL REFERENCES disburse.commissions(commission_id),
			idempotency_key TEXT NOT NULL UNIQUE,
			provider_txn_id TEXT UNIQUE,
			provider TEXT NOT NULL,
			payee_ref TEXT NOT NULL,
			amount BIGINT NOT NULL,
			provider_amount NUMERIC NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			retry_count INT NOT NULL DEFAULT 0,
			last_retry_at TIMESTAMP,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMP,
			failed_at TIMESTAMP,
			meta_data JSONB
		)
	`)
	return err
}

func createWebhookEventTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS disburse.webhook_events (
			id SERIAL PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			provider_event_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			provider_txn_id TEXT,
			payload JSONB NOT NULL,
			received_at TIMESTAMP NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMP,
			transaction_id TEXT
		)
	`)
	return err
}

func createAuditLogTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS disburse.audit_logs (
			id SERIAL PRIMARY KEY,
			audit_log_id TEXT NOT NULL UNIQUE,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			transaction_id TEXT,
			batch_id TEXT,
			before_state TEXT,
			after_state TEXT,
			details JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}
