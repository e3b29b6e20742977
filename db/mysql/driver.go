package mysql

import (
	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Dialector returns the MySQL dialector for dsn. parseTime is forced on
// because the battle and audit timestamps scan into time.Time.
func Dialector(dsn string) (gorm.Dialector, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ParseTime = true
	return gormmysql.Open(cfg.FormatDSN()), nil
}
