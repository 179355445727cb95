// Package relay はRedis Pub/Subを使って複数のサーバーインスタンス間で
// チャットメッセージを中継する。
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/chatline/internal/chat"
)

// DefaultChannel はデフォルトのPub/Subチャネル名。
const DefaultChannel = "chatline:messages"

// Deliverer は中継されたメッセージをローカルの接続へ配信する。
// chat.Hub が実装する。
type Deliverer interface {
	Broadcast(ctx context.Context, msg chat.OutboundMessage) chat.DeliveryReport
}

// envelope はチャネルに流すメッセージ。
// Originは発行元インスタンスの識別子でログの相関に使う。
type envelope struct {
	Origin  string               `json:"origin"`
	Message chat.OutboundMessage `json:"message"`
}

// NewClient はRedis URLからクライアントを生成し、疎通を確認する。
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.ConnMaxIdleTime = 5 * time.Minute

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Relay はchat.Fanoutを実装し、発行したメッセージを全インスタンスへ配る。
// 自インスタンスが発行したメッセージも購読経由で受け取り、ローカルに配信する。
type Relay struct {
	rdb     *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// New は新しいRelayを生成する。
func New(rdb *redis.Client, channel string, logger *slog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Origin はこのインスタンスの識別子を返す。
func (r *Relay) Origin() string {
	return r.origin
}

// Publish はメッセージをチャネルに発行する。
func (r *Relay) Publish(ctx context.Context, msg chat.OutboundMessage) error {
	data, err := json.Marshal(envelope{Origin: r.origin, Message: msg})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Run はチャネルを購読し、受信したメッセージをdへ配信する。
// ctxがキャンセルされるまでブロックする。
// ready が非nilの場合、購読が確立した時点で閉じられる。
func (r *Relay) Run(ctx context.Context, d Deliverer, ready chan<- struct{}) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	r.logger.Info("relay subscribed", "channel", r.channel, "origin", r.origin)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped", "channel", r.channel)
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, d, m.Payload)
		}
	}
}

func (r *Relay) handle(ctx context.Context, d Deliverer, payload string) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		r.logger.Warn("discarding malformed relay payload", "error", err)
		return
	}

	report := d.Broadcast(ctx, env.Message)
	r.logger.Debug("relayed message delivered",
		"origin", env.Origin,
		"local", env.Origin == r.origin,
		"attempted", report.Attempted,
		"delivered", report.Delivered,
	)
}

func decodeEnvelope(payload string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Origin == "" {
		return envelope{}, fmt.Errorf("envelope has no origin")
	}
	return env, nil
}
