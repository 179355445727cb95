package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// controlWriteWait はping/closeフレーム送信のタイムアウト。
const controlWriteWait = time.Second

// WebSocketConfig はWebSocketトランスポートの設定を保持する。
type WebSocketConfig struct {
	// ReadLimit は受信メッセージの最大バイト数。0以下は無制限。
	ReadLimit int64
	// PingInterval はpingの送信間隔。0以下でpingを送らない。
	PingInterval time.Duration
}

// PongWait はpongを待つ時間。pingの送信間隔より長くする。
func (c WebSocketConfig) PongWait() time.Duration {
	if c.PingInterval <= 0 {
		return 0
	}
	return c.PingInterval * 2
}

// WebSocketTransport はgorilla/websocketの接続をTransportとして扱う。
type WebSocketTransport struct {
	conn     *websocket.Conn
	pongWait time.Duration

	// writeLock は書き込みを直列化する。ctxのキャンセルで待機を打ち切れるようチャネルで実装する。
	writeLock chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketTransport はアップグレード済みの接続からTransportを生成し、
// ping送信を開始する。pingはCloseで停止する。
func NewWebSocketTransport(conn *websocket.Conn, config WebSocketConfig) *WebSocketTransport {
	t := &WebSocketTransport{
		conn:      conn,
		pongWait:  config.PongWait(),
		writeLock: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	if config.ReadLimit > 0 {
		conn.SetReadLimit(config.ReadLimit)
	}
	if t.pongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(t.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(t.pongWait))
		})
		go t.pingLoop(config.PingInterval)
	}
	return t
}

// ReadMessage は次のデータフレームを返す。
// ピアからの正常なクローズはio.EOFとして返す。
func (t *WebSocketTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived,
		) {
			return nil, io.EOF
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return data, nil
}

// WriteMessage はテキストフレームを送信する。
// ctxに期限がある場合は書き込み期限として設定する。
func (t *WebSocketTransport) WriteMessage(ctx context.Context, data []byte) error {
	select {
	case t.writeLock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrConnClosed
	}
	defer func() { <-t.writeLock }()

	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close はcloseフレームを送ってから接続を閉じる。
func (t *WebSocketTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait))
		t.closeErr = t.conn.Close()
		if errors.Is(t.closeErr, websocket.ErrCloseSent) {
			t.closeErr = nil
		}
	})
	return t.closeErr
}

func (t *WebSocketTransport) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
				_ = t.conn.Close()
				return
			}
		}
	}
}
