package postgres

import (
	"database/sql"

	"github.com/go-kit/kit/log"

	"github.com/fmitra/iap/internal/entropy"
)

// NewClient returns a new Postgres client to manage repositories.
func NewClient(options ...ConfigOption) *Client {
	c := Client{
		logger: log.NewNopLogger(),
		ids:    entropy.NewGenerator(),
	}

	for _, opt := range options {
		opt(&c)
	}

	c.createQueries()

	// Each repository has an embedded client to ensure they
	// use the same connection and are able to share transactions.
	c.bindRepositories()

	return &c
}

// ConfigOption configures the Client.
type ConfigOption func(*Client)

// WithLogger configures the client with a Logger.
func WithLogger(l log.Logger) ConfigOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithIDGenerator configures the client with a generator for
// entity IDs. Defaults to monotonic ULIDs.
func WithIDGenerator(g *entropy.Generator) ConfigOption {
	return func(c *Client) {
		c.ids = g
	}
}

// WithDB configures the client with a Postgres DB.
func WithDB(db *sql.DB) ConfigOption {
	return func(c *Client) {
		c.db = db
	}
}
