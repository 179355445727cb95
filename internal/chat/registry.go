package chat

import (
	"sort"
	"sync"
)

// Registry は接続中のidentityとConnの対応を管理する。
// 1つのidentityに対応するConnは常に高々1つ。
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]*Conn
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int64]*Conn),
	}
}

// Register はidentityにconnを対応付ける。
// 既に別の接続が登録されていた場合は置き換え、置き換えられた接続を返す。
// 置き換えられた接続を閉じるのは呼び出し側の責務。
func (r *Registry) Register(identity int64, conn *Conn) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[identity]
	r.conns[identity] = conn
	if prev == conn {
		return nil
	}
	return prev
}

// Unregister はidentityの登録を削除し、削除した接続を返す。
// 登録がない場合は何もせずnilを返す。
func (r *Registry) Unregister(identity int64) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[identity]
	if !ok {
		return nil
	}
	delete(r.conns, identity)
	return conn
}

// Release はidentityの登録がconnを指している場合に限り削除する。
// 置き換え済みの古い接続が後継の登録を消さないようにするために使う。
func (r *Registry) Release(identity int64, conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[identity] != conn {
		return false
	}
	delete(r.conns, identity)
	return true
}

// Get はidentityに対応する接続を返す。
func (r *Registry) Get(identity int64) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[identity]
	return conn, ok
}

// Snapshot は現在登録されている接続のコピーを返す。
// 返したスライスはその後の登録・削除の影響を受けない。
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Identities は接続中のidentityを昇順で返す。
func (r *Registry) Identities() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len は接続数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
