package database

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/bgaipov/paycore/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
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
		instance = &Datasource{Conn: con}
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
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createOrderTable(db)
	if err != nil {
		return nil, err
	}
	err = createLedgerEntryTable(db)
	if err != nil {
		return nil, err
	}
	err = createProviderTransactionTable(db)
	if err != nil {
		return nil, err
	}
	err = createReconciliationReportTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// createProviderTransactionTable creates a PostgreSQL table for the ProviderTransaction struct.
// The unique (provider, txn_id) pair is what makes duplicate webhook delivery detectable.
func createProviderTransactionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS provider_transactions (
			id SERIAL PRIMARY KEY,
			txn_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			operation TEXT NOT NULL,
			account TEXT,
			amount NUMERIC(20,2),
			txn_date TEXT,
			status TEXT NOT NULL,
			result_code INT NOT NULL DEFAULT 0,
			error_message TEXT,
			raw_request TEXT,
			raw_response TEXT,
			client_ip TEXT,
			client_agent TEXT,
			is_duplicate BOOLEAN NOT NULL DEFAULT FALSE,
			is_processed BOOLEAN NOT NULL DEFAULT FALSE,
			ledger_entry_id TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (provider, txn_id)
		)
	`)
	log.Println(err)
	return err
}

// createOrderTable creates a PostgreSQL table for the Order collaborator
func createOrderTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			amount NUMERIC(20,2) NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'pending',
			payment_error TEXT,
			paid_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}

// createLedgerEntryTable creates a PostgreSQL table for the LedgerEntry struct.
// provider_txn_id is unique: the constraint, not in-memory locking, enforces
// at-most-once application of a webhook to the ledger.
func createLedgerEntryTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id SERIAL PRIMARY KEY,
			entry_id TEXT NOT NULL UNIQUE,
			order_id BIGINT NOT NULL REFERENCES orders(id),
			provider_txn_id TEXT NOT NULL UNIQUE,
			amount NUMERIC(20,2) NOT NULL,
			status TEXT NOT NULL,
			description TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMP
		)
	`)
	log.Println(err)
	return err
}

// createReconciliationReportTable creates a PostgreSQL table for the
// ReconciliationReport struct. report_date is unique so two concurrent
// generation triggers cannot produce two reports for one date.
func createReconciliationReportTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reconciliation_reports (
			id SERIAL PRIMARY KEY,
			report_id TEXT NOT NULL UNIQUE,
			report_date DATE NOT NULL UNIQUE,
			generated_at TIMESTAMP NOT NULL,
			content TEXT,
			payment_count INT NOT NULL DEFAULT 0,
			total_amount NUMERIC(20,2) NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			email_address TEXT,
			sent_at TIMESTAMP,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}
