package store

import (
	_ "github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	driver: "mysql",
	ddl: []string{
		`CREATE TABLE IF NOT EXISTS diagram_versions (
			id CHAR(36) NOT NULL PRIMARY KEY,
			artifact_id VARCHAR(255) NOT NULL,
			version_no INT NOT NULL,
			content LONGTEXT NOT NULL,
			content_hash CHAR(16) NOT NULL,
			metadata TEXT,
			created_at BIGINT NOT NULL,
			UNIQUE KEY uk_artifact_number (artifact_id, version_no)
		)`,
	},
}

// NewMySQLStore 创建 MySQL 存储，dsn 形如 user:pass@tcp(host:3306)/db
func NewMySQLStore(dsn string) (*SQLStore, error) {
	return openSQL(mysqlDialect, dsn)
}
