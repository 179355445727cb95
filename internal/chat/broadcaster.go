package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BroadcasterConfig は配信の並行度とタイムアウトを設定する。
type BroadcasterConfig struct {
	// MaxInFlight は同時に実行する送信の最大数。
	MaxInFlight int
	// SendTimeout は1接続あたりの送信タイムアウト。
	SendTimeout time.Duration
}

// DefaultBroadcasterConfig はデフォルト設定を返す。
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		MaxInFlight: 32,
		SendTimeout: 5 * time.Second,
	}
}

// DeliveryReport は1回の配信結果を表す。
type DeliveryReport struct {
	Attempted int
	Delivered int
	Failed    []int64
}

// Broadcaster は接続中の全ユーザーへメッセージを配信する。
type Broadcaster struct {
	registry *Registry
	config   BroadcasterConfig
	logger   *slog.Logger
	metrics  Metrics
}

// NewBroadcaster は新しいBroadcasterを生成する。
func NewBroadcaster(registry *Registry, config BroadcasterConfig, logger *slog.Logger, metrics Metrics) *Broadcaster {
	defaults := DefaultBroadcasterConfig()
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = defaults.MaxInFlight
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Broadcaster{
		registry: registry,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

// Broadcast はメッセージを1回だけエンコードし、Registryのスナップショットに
// 含まれる全接続へ並行して送信する。
// 個々の送信失敗は他の送信を中断せず、失敗した接続はRegistryから外して閉じる。
func (b *Broadcaster) Broadcast(ctx context.Context, msg OutboundMessage) DeliveryReport {
	data, err := EncodeOutbound(msg)
	if err != nil {
		b.logger.Error("failed to encode outbound message", "error", err)
		return DeliveryReport{}
	}
	return b.BroadcastRaw(ctx, data)
}

// BroadcastRaw はエンコード済みのデータを配信する。
func (b *Broadcaster) BroadcastRaw(ctx context.Context, data []byte) DeliveryReport {
	conns := b.registry.Snapshot()
	report := DeliveryReport{Attempted: len(conns)}
	if len(conns) == 0 {
		return report
	}

	sem := make(chan struct{}, b.config.MaxInFlight)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, c := range conns {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// 未送信の接続は失敗扱いにしない
			wg.Wait()
			return report
		}

		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			defer func() { <-sem }()

			ok := b.deliver(ctx, c, data)

			mu.Lock()
			if ok {
				report.Delivered++
			} else {
				report.Failed = append(report.Failed, c.Identity())
			}
			mu.Unlock()
		}(c)
	}

	wg.Wait()
	return report
}

func (b *Broadcaster) deliver(ctx context.Context, c *Conn, data []byte) bool {
	sendCtx, cancel := context.WithTimeout(ctx, b.config.SendTimeout)
	defer cancel()

	start := time.Now()
	err := c.send(sendCtx, data)
	if err == nil {
		b.metrics.Delivered(time.Since(start))
		return true
	}

	b.metrics.DeliveryFailed()
	b.logger.Warn("failed to deliver message",
		"user_id", c.Identity(),
		"conn_id", c.ID(),
		"error", err,
	)

	// 配信全体が中断された場合は受信側の問題ではないため切断しない
	if ctx.Err() != nil {
		return false
	}
	b.registry.Release(c.Identity(), c)
	_ = c.Close()
	return false
}
