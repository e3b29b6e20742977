package postgres

import (
	"database/sql"

	// registers the "postgres" database/sql driver
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Dialector returns a PostgreSQL dialector that talks through lib/pq
// rather than the pgx default.
func Dialector(dsn string) (gorm.Dialector, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return postgres.New(postgres.Config{Conn: conn}), nil
}
