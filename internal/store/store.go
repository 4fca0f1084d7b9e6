// Package store persists saved diagram text as immutable version records.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/highwayhash"
)

// ErrNotFound 没有任何版本
var ErrNotFound = errors.New("store: not found")

var hashKey = []byte("diagram-sync/content-hash-key-32")

// Artifact 一次保存请求
type Artifact struct {
	ArtifactID string            `json:"artifactId"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Version 保存后的版本记录
type Version struct {
	ID         string            `json:"id"`
	ArtifactID string            `json:"artifactId"`
	Number     int               `json:"number"`
	Content    string            `json:"content"`
	Hash       string            `json:"hash"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Store 版本存储接口
type Store interface {
	// SaveVersion 保存新版本；内容与最新版本相同时返回已有版本
	SaveVersion(ctx context.Context, a Artifact) (*Version, error)

	// Latest 最新版本，不存在时返回 ErrNotFound
	Latest(ctx context.Context, artifactID string) (*Version, error)

	// History 全部版本，按版本号升序
	History(ctx context.Context, artifactID string) ([]Version, error)

	Close() error
}

// Open 按驱动名创建存储
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite3":
		return NewSQLiteStore(dsn)
	case "mysql":
		return NewMySQLStore(dsn)
	case "sqlserver":
		return NewSQLServerStore(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// ContentHash is the HighwayHash-64 of content in hex.
func ContentHash(content string) string {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		// 仅在 key 长度不是 32 字节时发生
		panic(err)
	}
	h.Write([]byte(content))
	return fmt.Sprintf("%016x", h.Sum64())
}

func validate(a Artifact) error {
	if a.ArtifactID == "" {
		return errors.New("store: artifact id is required")
	}
	return nil
}
