package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const versionColumns = "id, artifact_id, version_no, content, content_hash, metadata, created_at"

// dialect SQL 方言差异
type dialect struct {
	driver string
	ddl    []string
	// numbered 使用 @p1, @p2 占位符（SQL Server）
	numbered bool
	// top 使用 SELECT TOP 1 而不是 LIMIT 1
	top bool
	// maxConns 为 0 时不限制
	maxConns int
}

// rebind rewrites ? placeholders for the dialect.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("@p" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (d dialect) latestQuery() string {
	if d.top {
		return d.rebind("SELECT TOP 1 " + versionColumns + " FROM diagram_versions WHERE artifact_id = ? ORDER BY version_no DESC")
	}
	return d.rebind("SELECT " + versionColumns + " FROM diagram_versions WHERE artifact_id = ? ORDER BY version_no DESC LIMIT 1")
}

func (d dialect) historyQuery() string {
	return d.rebind("SELECT " + versionColumns + " FROM diagram_versions WHERE artifact_id = ? ORDER BY version_no ASC")
}

func (d dialect) insertQuery() string {
	return d.rebind("INSERT INTO diagram_versions (" + versionColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)")
}

// SQLStore database/sql 版本存储
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func openSQL(d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if d.maxConns > 0 {
		db.SetMaxOpenConns(d.maxConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}
	s := &SQLStore{db: db, dialect: d}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	for _, stmt := range s.dialect.ddl {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveVersion appends a version unless the content hash equals the latest one.
func (s *SQLStore) SaveVersion(ctx context.Context, a Artifact) (*Version, error) {
	if err := validate(a); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	hash := ContentHash(a.Content)
	number := 1
	latest, err := scanVersion(tx.QueryRowContext(ctx, s.dialect.latestQuery(), a.ArtifactID))
	switch {
	case err == nil && latest.Hash == hash:
		return latest, nil
	case err == nil:
		number = latest.Number + 1
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	md, err := json.Marshal(a.Metadata)
	if err != nil {
		return nil, err
	}
	v := &Version{
		ID:         uuid.NewString(),
		ArtifactID: a.ArtifactID,
		Number:     number,
		Content:    a.Content,
		Hash:       hash,
		Metadata:   cloneMetadata(a.Metadata),
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := tx.ExecContext(ctx, s.dialect.insertQuery(),
		v.ID, v.ArtifactID, v.Number, v.Content, v.Hash, string(md), v.CreatedAt.UnixMilli()); err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *SQLStore) Latest(ctx context.Context, artifactID string) (*Version, error) {
	return scanVersion(s.db.QueryRowContext(ctx, s.dialect.latestQuery(), artifactID))
}

func (s *SQLStore) History(ctx context.Context, artifactID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.historyQuery(), artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row scanner) (*Version, error) {
	var (
		v       Version
		md      string
		created int64
	)
	err := row.Scan(&v.ID, &v.ArtifactID, &v.Number, &v.Content, &v.Hash, &md, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if md != "" && md != "null" {
		if err := json.Unmarshal([]byte(md), &v.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of version %s: %w", v.ID, err)
		}
	}
	v.CreatedAt = time.UnixMilli(created).UTC()
	return &v, nil
}
