package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrConnClosed は既にクローズされた接続への送信で返される。
var ErrConnClosed = errors.New("chat: connection closed")

// Transport は1本の常時接続に対する送受信を抽象化する。
// WriteMessageは複数goroutineから同時に呼ばれてもよい。
type Transport interface {
	// ReadMessage は次のメッセージを受信するまでブロックする。
	// ピアが正常にクローズした場合はio.EOFを返す。
	ReadMessage(ctx context.Context) ([]byte, error)
	// WriteMessage はメッセージを送信する。ctxの期限を送信タイムアウトとして扱う。
	WriteMessage(ctx context.Context, data []byte) error
	// Close は接続を閉じる。複数回呼ばれてもよい。
	Close() error
}

// State は接続の状態を表す。
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn はidentityと1本のTransportの対応を表す。永続化はしない。
// 状態は Connecting → Open → Closed の順にのみ遷移する。
type Conn struct {
	id          string
	identity    int64
	transport   Transport
	connectedAt time.Time

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

func newConn(identity int64, t Transport) *Conn {
	return &Conn{
		id:          uuid.NewString(),
		identity:    identity,
		transport:   t,
		connectedAt: time.Now(),
	}
}

// ID は接続ごとに採番されるUUIDを返す。ログの相関に使う。
func (c *Conn) ID() string { return c.id }

// Identity は接続のユーザーIDを返す。
func (c *Conn) Identity() int64 { return c.identity }

// ConnectedAt は接続確立時刻を返す。
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// State は現在の状態を返す。
func (c *Conn) State() State { return State(c.state.Load()) }

// open は Connecting から Open へ遷移させる。
// 既にクローズ済みの場合はfalseを返す。
func (c *Conn) open() bool {
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// Close は接続をClosedへ遷移させ、Transportを閉じる。
// 何度呼んでもTransportのCloseは1回だけ実行される。
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		c.closeErr = c.transport.Close()
	})
	return c.closeErr
}

// send はメッセージを送信する。
func (c *Conn) send(ctx context.Context, data []byte) error {
	if c.State() == StateClosed {
		return ErrConnClosed
	}
	return c.transport.WriteMessage(ctx, data)
}
