package repository

import (
	"context"
	"sync"
)

// MemoryClientStateRepo はプロセス内メモリに保持するクライアント状態リポジトリ。
// DATABASE_URL を使わない開発用途とテストで使う。
type MemoryClientStateRepo struct {
	mu    sync.RWMutex
	items map[string]map[string]string
}

// NewMemoryClientStateRepo はMemoryClientStateRepoを生成する。
func NewMemoryClientStateRepo() *MemoryClientStateRepo {
	return &MemoryClientStateRepo{items: make(map[string]map[string]string)}
}

// GetItems は指定キーの値を取得する。
func (r *MemoryClientStateRepo) GetItems(ctx context.Context, namespace string, keys ...string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(keys))
	ns := r.items[namespace]
	for _, k := range keys {
		if v, ok := ns[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetItems は全てのキーを1回のロック内で書き込む。
func (r *MemoryClientStateRepo) SetItems(ctx context.Context, namespace string, items map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns, ok := r.items[namespace]
	if !ok {
		ns = make(map[string]string, len(items))
		r.items[namespace] = ns
	}
	for k, v := range items {
		ns[k] = v
	}
	return nil
}

// RemoveItems は指定キーを1回のロック内で削除する。
func (r *MemoryClientStateRepo) RemoveItems(ctx context.Context, namespace string, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns, ok := r.items[namespace]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(ns, k)
	}
	if len(ns) == 0 {
		delete(r.items, namespace)
	}
	return nil
}

// Len は保持しているnamespaceの数を返す。テスト用。
func (r *MemoryClientStateRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

var _ ClientStateRepository = (*MemoryClientStateRepo)(nil)
