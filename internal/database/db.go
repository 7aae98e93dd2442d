package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Settings carries what is needed to reach MySQL.
type Settings struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// DSN renders the driver connection string.
func (s Settings) DSN() string {
	c := mysql.NewConfig()
	c.User = s.User
	c.Passwd = s.Pass
	c.Net = "tcp"
	c.Addr = s.Host + ":" + s.Port
	c.DBName = s.Name
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	c.ParseTime = true
	c.Loc = time.UTC
	c.Params = map[string]string{"charset": "utf8mb4"}
	// golang-migrate needs several statements per migration file
	c.MultiStatements = true
	return c.FormatDSN()
}

// Open connects to MySQL and verifies the connection.
func Open(ctx context.Context, s Settings) (*sql.DB, error) {
	db, err := sql.Open("mysql", s.DSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql %s: %w", s.Host, err)
	}
	return db, nil
}

// Ping reports whether the pool can still reach the server.
func Ping(ctx context.Context, db *sql.DB) error {
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(pctx)
}
