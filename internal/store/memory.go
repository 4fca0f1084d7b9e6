package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore 进程内存储，用于测试和未配置数据库时
type MemoryStore struct {
	mu       sync.Mutex
	versions map[string][]Version
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{versions: make(map[string][]Version)}
}

func (m *MemoryStore) SaveVersion(ctx context.Context, a Artifact) (*Version, error) {
	if err := validate(a); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hash := ContentHash(a.Content)
	history := m.versions[a.ArtifactID]
	if n := len(history); n > 0 && history[n-1].Hash == hash {
		v := cloneVersion(history[n-1])
		return &v, nil
	}

	v := Version{
		ID:         uuid.NewString(),
		ArtifactID: a.ArtifactID,
		Number:     len(history) + 1,
		Content:    a.Content,
		Hash:       hash,
		Metadata:   cloneMetadata(a.Metadata),
		CreatedAt:  time.Now().UTC(),
	}
	m.versions[a.ArtifactID] = append(history, v)
	out := cloneVersion(v)
	return &out, nil
}

func (m *MemoryStore) Latest(ctx context.Context, artifactID string) (*Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.versions[artifactID]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	v := cloneVersion(history[len(history)-1])
	return &v, nil
}

func (m *MemoryStore) History(ctx context.Context, artifactID string) ([]Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.versions[artifactID]
	out := make([]Version, len(history))
	for i, v := range history {
		out[i] = cloneVersion(v)
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneVersion(v Version) Version {
	v.Metadata = cloneMetadata(v.Metadata)
	return v
}

func cloneMetadata(md map[string]string) map[string]string {
	if md == nil {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
