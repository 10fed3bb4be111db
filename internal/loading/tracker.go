// Package loading はブラウザセッションごとの処理中フラグを管理する。
// 画面のスピナー表示と、同じ送信の二重実行防止に使う。
package loading

import (
	"sort"
	"sync"
)

// 画面の操作名
const (
	OpLogin           = "login"
	OpRegister        = "register"
	OpLoadEvents      = "load_events"
	OpLoadEvent       = "load_event"
	OpSaveEvent       = "save_event"
	OpDeleteEvent     = "delete_event"
	OpAddParticipants = "add_participants"
	OpLoadMembers     = "load_members"
	OpLoadChurches    = "load_churches"
)

type scope struct {
	namespace string
	operation string
}

// Tracker は (namespace, operation) 単位で処理中の件数を保持する。
type Tracker struct {
	mu     sync.Mutex
	active map[scope]int
}

// NewTracker はTrackerを生成する。
func NewTracker() *Tracker {
	return &Tracker{active: make(map[scope]int)}
}

// Begin は処理開始を記録し、終了時に呼ぶ解放関数を返す。
// 解放関数は成功・失敗・panicのいずれでも defer で必ず呼ぶこと。
// 2回以上呼んでも1回分しか減らない。
func (t *Tracker) Begin(namespace, operation string) (release func()) {
	s := scope{namespace: namespace, operation: operation}
	t.mu.Lock()
	t.active[s]++
	t.mu.Unlock()
	return t.releaser(s)
}

// TryBegin は同じ操作が処理中でなければ開始を記録して解放関数を返す。
// 処理中の場合は ok=false を返す。
func (t *Tracker) TryBegin(namespace, operation string) (release func(), ok bool) {
	s := scope{namespace: namespace, operation: operation}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active[s] > 0 {
		return func() {}, false
	}
	t.active[s]++
	return t.releaser(s), true
}

func (t *Tracker) releaser(s scope) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.active[s]--
			if t.active[s] <= 0 {
				delete(t.active, s)
			}
		})
	}
}

// IsActive は指定の操作が処理中かを返す。
func (t *Tracker) IsActive(namespace, operation string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[scope{namespace: namespace, operation: operation}] > 0
}

// Active はnamespaceで処理中の操作名を昇順で返す。
func (t *Tracker) Active(namespace string) []string {
	t.mu.Lock()
	ops := make([]string, 0)
	for s := range t.active {
		if s.namespace == namespace {
			ops = append(ops, s.operation)
		}
	}
	t.mu.Unlock()
	sort.Strings(ops)
	return ops
}
