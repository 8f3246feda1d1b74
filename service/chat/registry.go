package chat

import (
	"sync"
)

// PresenceObserver 在用户第一条连接注册 / 最后一条连接注销时回调。
// 回调在注册表锁内执行，实现必须非阻塞。
type PresenceObserver interface {
	UserOnline(userID string)
	UserOffline(userID string)
}

// Registry user -> conn_id -> client。
// 不变式：用户存在当且仅当至少有一条连接，空集合立即删除。
// 读取返回调用时刻的快照，与并发注册不保证线性一致。
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]map[string]*Client
	conns    int
	observer PresenceObserver
}

type RegistryOption func(*Registry)

func WithPresenceObserver(o PresenceObserver) RegistryOption {
	return func(r *Registry) { r.observer = o }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{byUser: make(map[string]map[string]*Client)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register 同一个 client 重复注册属于调用方错误，这里只覆盖不计数
func (r *Registry) Register(userID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.byUser[userID]
	if m == nil {
		m = make(map[string]*Client)
		r.byUser[userID] = m
		if r.observer != nil {
			r.observer.UserOnline(userID)
		}
	}
	if _, dup := m[c.ConnID]; !dup {
		r.conns++
	}
	m[c.ConnID] = c
	r.updateGauges()
}

// Unregister 不存在时是 no-op，返回是否真的删除了
func (r *Registry) Unregister(userID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.byUser[userID]
	if m == nil {
		return false
	}
	cur, ok := m[c.ConnID]
	if !ok || cur != c {
		return false
	}
	delete(m, c.ConnID)
	r.conns--
	if len(m) == 0 {
		delete(r.byUser, userID)
		if r.observer != nil {
			r.observer.UserOffline(userID)
		}
	}
	r.updateGauges()
	return true
}

// Get 返回快照，调用方可以在锁外写入
func (r *Registry) Get(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Has(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	return out
}

// Len returns (users, connections).
func (r *Registry) Len() (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser), r.conns
}

// CloseAll 关闭全部连接（停机用）。注销由各连接自己的 defer 完成。
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	all := make([]*Client, 0, r.conns)
	for _, m := range r.byUser {
		for _, c := range m {
			all = append(all, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range all {
		c.Close()
	}
	return len(all)
}

func (r *Registry) updateGauges() {
	usersGauge.Set(float64(len(r.byUser)))
	connectionsGauge.Set(float64(r.conns))
}
