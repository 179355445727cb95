package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/chatline/internal/model"
)

// ErrHubClosed はShutdown後にServeが呼ばれた場合に返される。
var ErrHubClosed = errors.New("chat: hub is shut down")

// MessageStore はメッセージの永続化を行う。
// 保存に失敗するのは永続化層の障害の場合のみ。
type MessageStore interface {
	Save(ctx context.Context, authorID int64, authorName, body string) (*model.Message, error)
}

// Fanout はローカル配信の代わりにメッセージを外部へ配る。
// 複数インスタンス構成でrelayが実装する。
type Fanout interface {
	Publish(ctx context.Context, msg OutboundMessage) error
}

// HubConfig はHubの設定を保持する。
type HubConfig struct {
	// MessageRate は1接続あたりの秒間メッセージ数。0以下は無制限。
	MessageRate rate.Limit
	// MessageBurst はバースト許容数。
	MessageBurst int
	// Location はtimestampの表示に使うタイムゾーン。
	Location *time.Location
	// SaveTimeout は1メッセージの保存にかける最大時間。
	SaveTimeout time.Duration
	// Broadcaster は配信設定。
	Broadcaster BroadcasterConfig
}

// DefaultHubConfig はデフォルト設定を返す。
func DefaultHubConfig() HubConfig {
	return HubConfig{
		MessageRate:  5,
		MessageBurst: 10,
		Location:     time.Local,
		SaveTimeout:  5 * time.Second,
		Broadcaster:  DefaultBroadcasterConfig(),
	}
}

// Hub は接続ごとの受信ループを実行し、保存と配信を仲介する。
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	store       MessageStore
	config      HubConfig
	logger      *slog.Logger
	metrics     Metrics

	fanoutMu sync.RWMutex
	fanout   Fanout

	// baseCtx は保存と配信に使う。送信者の切断で他の受信者の配信が中断されないようにする。
	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewHub は新しいHubを生成する。
func NewHub(store MessageStore, config HubConfig, logger *slog.Logger, metrics Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.MessageRate <= 0 {
		config.MessageRate = rate.Inf
	}
	if config.MessageBurst <= 0 {
		config.MessageBurst = 1
	}
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = DefaultHubConfig().SaveTimeout
	}

	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:    registry,
		broadcaster: NewBroadcaster(registry, config.Broadcaster, logger, metrics),
		store:       store,
		config:      config,
		logger:      logger,
		metrics:     metrics,
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Registry は接続のRegistryを返す。
func (h *Hub) Registry() *Registry {
	return h.registry
}

// SetFanout は外部配信先を設定する。nilを渡すとローカル配信に戻る。
func (h *Hub) SetFanout(f Fanout) {
	h.fanoutMu.Lock()
	defer h.fanoutMu.Unlock()
	h.fanout = f
}

func (h *Hub) currentFanout() Fanout {
	h.fanoutMu.RLock()
	defer h.fanoutMu.RUnlock()
	return h.fanout
}

// Serve はidentityの接続を登録し、切断されるまで受信ループを実行する。
// 同じidentityの既存接続は置き換えられ、閉じられる。
// ピアの正常切断、ctxのキャンセル、置き換えによる終了ではnilを返す。
func (h *Hub) Serve(ctx context.Context, identity int64, t Transport) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = t.Close()
		return ErrHubClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn := newConn(identity, t)
	if prev := h.registry.Register(identity, conn); prev != nil {
		h.metrics.ConnectionReplaced()
		h.logger.Info("connection replaced",
			"user_id", identity,
			"old_conn_id", prev.ID(),
			"conn_id", conn.ID(),
		)
		_ = prev.Close()
	}
	conn.open()
	h.metrics.ConnectionOpened()
	h.logger.Info("connection opened", "user_id", identity, "conn_id", conn.ID())

	defer func() {
		h.registry.Release(identity, conn)
		_ = conn.Close()
		h.metrics.ConnectionClosed()
		h.logger.Info("connection closed",
			"user_id", identity,
			"conn_id", conn.ID(),
			"duration_ms", time.Since(conn.ConnectedAt()).Milliseconds(),
		)
	}()

	// Shutdownのスナップショット取得後に登録された接続はここで閉じる
	if h.isClosed() {
		return ErrHubClosed
	}

	limiter := rate.NewLimiter(h.config.MessageRate, h.config.MessageBurst)
	for {
		data, err := t.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil || conn.State() == StateClosed {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		h.handleInbound(conn, limiter, data)
	}
}

// handleInbound は受信した1メッセージを検証・保存・配信する。
// 不正なメッセージは破棄し、送信元にだけエラーフレームを返す。
func (h *Hub) handleInbound(conn *Conn, limiter *rate.Limiter, data []byte) {
	if !limiter.Allow() {
		h.metrics.MessageRejected("rate_limited")
		h.reply(conn, model.NewRateLimitedError())
		return
	}

	in, err := DecodeInbound(data)
	if err == nil {
		err = in.Validate(conn.Identity())
	}
	if err != nil {
		h.metrics.MessageRejected("invalid_payload")
		h.logger.Warn("invalid payload",
			"user_id", conn.Identity(),
			"conn_id", conn.ID(),
			"error", err,
		)
		h.reply(conn, model.NewInvalidPayloadError(err.Error()))
		return
	}

	saveCtx, cancel := context.WithTimeout(h.baseCtx, h.config.SaveTimeout)
	saved, err := h.store.Save(saveCtx, *in.AuthorID, in.AuthorName, in.Body)
	cancel()
	if err != nil {
		h.metrics.StorageFailed()
		h.logger.Error("failed to save message",
			"user_id", conn.Identity(),
			"conn_id", conn.ID(),
			"error", err,
		)
		h.reply(conn, model.NewStorageFailedError())
		return
	}
	h.metrics.MessageAccepted()

	out := NewOutboundMessage(*in.AuthorID, saved, h.config.Location)
	if f := h.currentFanout(); f != nil {
		err := f.Publish(h.baseCtx, out)
		if err == nil {
			return
		}
		h.logger.Warn("fanout publish failed, falling back to local broadcast", "error", err)
	}
	h.Broadcast(h.baseCtx, out)
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// reply は送信元の接続にだけエラーフレームを送る。
func (h *Hub) reply(conn *Conn, apiErr *model.APIError) {
	ctx, cancel := context.WithTimeout(h.baseCtx, h.broadcaster.config.SendTimeout)
	defer cancel()
	if err := conn.send(ctx, EncodeError(apiErr)); err != nil {
		h.logger.Warn("failed to send error frame",
			"user_id", conn.Identity(),
			"conn_id", conn.ID(),
			"error", err,
		)
	}
}

// Broadcast はローカルに接続中の全ユーザーへメッセージを配信する。
// relayから受け取ったメッセージの配信にも使う。
func (h *Hub) Broadcast(ctx context.Context, msg OutboundMessage) DeliveryReport {
	report := h.broadcaster.Broadcast(ctx, msg)
	if len(report.Failed) > 0 {
		h.logger.Warn("broadcast completed with failures",
			"attempted", report.Attempted,
			"delivered", report.Delivered,
			"failed", len(report.Failed),
		)
	}
	return report
}

// Shutdown は新規接続の受け付けを止め、全接続を閉じる。
// 受信ループの終了をctxの期限まで待つ。
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	for _, c := range h.registry.Snapshot() {
		h.registry.Release(c.Identity(), c)
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for connections: %w", ctx.Err())
	}
}
