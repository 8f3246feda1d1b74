package followers

import (
	"context"
	"os"
	"sync"

	"PPRealtime/tools/errs"

	"gopkg.in/yaml.v3"
)

// Memory 进程内关注关系，开发与测试用。
// 文件格式（yaml）：作者ID -> 粉丝ID列表
//
//	u1: [u2, u3]
//	u2: []
type Memory struct {
	mu    sync.RWMutex
	graph map[string][]string
}

func NewMemory(graph map[string][]string) *Memory {
	m := &Memory{graph: make(map[string][]string, len(graph))}
	for author, fs := range graph {
		m.graph[author] = append([]string(nil), fs...)
	}
	return m
}

// NewMemoryFromFile path 为空时返回空图
func NewMemoryFromFile(path string) (*Memory, error) {
	if path == "" || path == "/" {
		return NewMemory(nil), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.ErrConfig.WrapMsg("read followers file", "path", path, "err", err)
	}
	var graph map[string][]string
	if err := yaml.Unmarshal(b, &graph); err != nil {
		return nil, errs.ErrConfig.WrapMsg("parse followers file", "path", path, "err", err)
	}
	return NewMemory(graph), nil
}

// Set 覆盖作者的粉丝列表（同时建立 profile）
func (m *Memory) Set(authorID string, followers ...string) {
	m.mu.Lock()
	m.graph[authorID] = append([]string(nil), followers...)
	m.mu.Unlock()
}

func (m *Memory) Followers(ctx context.Context, authorID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	fs, ok := m.graph[authorID]
	if !ok {
		return nil, noProfile(authorID)
	}
	return append([]string(nil), fs...), nil
}

func (m *Memory) Close() error { return nil }
