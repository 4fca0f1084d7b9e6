package store

import (
	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	driver: "sqlite3",
	ddl: []string{
		`CREATE TABLE IF NOT EXISTS diagram_versions (
			id TEXT PRIMARY KEY,
			artifact_id TEXT NOT NULL,
			version_no INTEGER NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL,
			UNIQUE (artifact_id, version_no)
		)`,
	},
	// ":memory:" 每个连接都是独立数据库，且 sqlite 写入本就串行
	maxConns: 1,
}

// NewSQLiteStore 创建 SQLite 存储；dsn 可以是文件路径或 ":memory:"
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	return openSQL(sqliteDialect, dsn)
}
