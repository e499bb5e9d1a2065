package test

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	// Registers the postgres driver for test databases.
	_ "github.com/lib/pq"

	"github.com/fmitra/iap"
)

// PGClient provides a throwaway database with the iap schema applied.
type PGClient struct {
	DB     *sql.DB
	dbName string
}

func pgConnString(dbName string) string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf(
		"user=iap password=swordfish host=%s port=5432 dbname=%s connect_timeout=3 sslmode=disable",
		host, dbName,
	)
}

// withSysDB runs fn against the maintenance database.
func withSysDB(fn func(db *sql.DB) error) error {
	sysDB, err := sql.Open("postgres", pgConnString("postgres"))
	if err != nil {
		return fmt.Errorf("system db connect failed: %w", err)
	}
	defer sysDB.Close()

	return fn(sysDB)
}

// NewPGDB creates a uniquely named database so parallel test packages
// never share tables. Callers skip their test when it fails.
func NewPGDB() (*PGClient, error) {
	dbName := "iap_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	err := withSysDB(func(sysDB *sql.DB) error {
		_, err := sysDB.Exec("CREATE DATABASE " + dbName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create test DB: %w", err)
	}

	c := &PGClient{dbName: dbName}
	c.DB, err = sql.Open("postgres", pgConnString(dbName))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to test DB: %w", err)
	}
	if err = c.DB.Ping(); err != nil {
		c.DropDB()
		return nil, fmt.Errorf("no response to ping: %w", err)
	}
	if _, err = c.DB.Exec(iap.Schema); err != nil {
		c.DropDB()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return c, nil
}

// DropDB closes the connection and removes the test database.
func (c *PGClient) DropDB() error {
	if c.DB != nil {
		c.DB.Close()
	}

	return withSysDB(func(sysDB *sql.DB) error {
		_, err := sysDB.Exec("DROP DATABASE IF EXISTS " + c.dbName)
		return err
	})
}
