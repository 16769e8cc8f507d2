package server

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"microarena/server/store"
)

// ErrManagerClosed 管理器已关闭，不再创建房间
var ErrManagerClosed = errors.New("room manager closed")

// RoomManager 管理多个房间的生命周期；每个房间一个 actor goroutine
type RoomManager struct {
	cfg Config

	mu     sync.RWMutex
	rooms  map[string]*Room
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRoomManager(cfg Config) *RoomManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomManager{
		cfg:    cfg,
		rooms:  make(map[string]*Room),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (m *RoomManager) Config() Config { return m.cfg }

func (m *RoomManager) openStore(id string) (store.Store, error) {
	if m.cfg.Storage.Dir == "" {
		return store.NewMemory(), nil
	}
	return store.NewDir(filepath.Join(m.cfg.Storage.Dir, id))
}

// GetOrCreateRoom 获取或创建房间：从存储恢复后启动 actor
func (m *RoomManager) GetOrCreateRoom(id string) (*Room, error) {
	m.mu.RLock()
	r, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok {
		return r, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	kv, err := m.openStore(id)
	if err != nil {
		return nil, fmt.Errorf("open store for %s: %w", id, err)
	}
	r = NewRoom(id, m.cfg, kv, nil)
	ctx, cancel := context.WithTimeout(m.ctx, storageTimeout)
	defer cancel()
	if err := r.Load(ctx); err != nil {
		return nil, fmt.Errorf("load room %s: %w", id, err)
	}
	m.rooms[id] = r
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.Run(m.ctx)
	}()
	Log.Infow("room opened", "room", id)
	return r, nil
}

// Room 已存在的房间
func (m *RoomManager) Room(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// RoomIDs 按名称排序
func (m *RoomManager) RoomIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown 停止所有房间并等待最终刷盘
func (m *RoomManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
