package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/chatline/internal/chat"
	"github.com/hitoshi/chatline/internal/middleware"
	"github.com/hitoshi/chatline/internal/model"
)

// ChatServer は接続ごとの受信ループを実行するインターフェース。
// chat.Hubが実装する。
type ChatServer interface {
	Serve(ctx context.Context, identity int64, t chat.Transport) error
}

// UserFinder は接続先ユーザーの存在確認に必要なインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// Presence は接続中のユーザーIDを返すインターフェース。
// chat.Registryが実装する。
type Presence interface {
	Identities() []int64
}

// WSHandlerConfig はWebSocketハンドラーの設定。
type WSHandlerConfig struct {
	Transport chat.WebSocketConfig
	// AllowedOrigin はブラウザからの接続で許可するOrigin。"*"または空の場合は全て許可する。
	AllowedOrigin string
	// RequireSession がtrueの場合、セッションのユーザーとパスのuser_idが一致しなければ拒否する。
	RequireSession bool
}

// WSHandler はチャット用WebSocketエンドポイントのHTTPハンドラー。
type WSHandler struct {
	server   ChatServer
	users    UserFinder
	presence Presence
	config   WSHandlerConfig
	upgrader websocket.Upgrader
}

// NewWSHandler はWSHandlerを生成する。
func NewWSHandler(server ChatServer, users UserFinder, presence Presence, config WSHandlerConfig) *WSHandler {
	h := &WSHandler{
		server:   server,
		users:    users,
		presence: presence,
		config:   config,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin はOriginヘッダーを検証する。
// Originを送らないネイティブクライアントは常に許可する。
func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.config.AllowedOrigin == "" || h.config.AllowedOrigin == "*" {
		return true
	}
	return origin == h.config.AllowedOrigin
}

// Connect はWebSocketにアップグレードし、切断されるまでチャットの受信ループを実行する。
// GET /ws/{user_id}
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	identity, ok := parseUserID(chi.URLParam(r, "user_id"))
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("user_id must be a positive integer"))
		return
	}

	if h.config.RequireSession {
		sessionUserID, err := middleware.UserIDFromContext(r.Context())
		if err != nil {
			writeAPIErrorResponse(w, http.StatusUnauthorized, errUnauthorized)
			return
		}
		if sessionUserID != identity {
			slog.Warn("websocket identity mismatch",
				slog.Int64("user_id", identity),
				slog.Int64("session_user_id", sessionUserID),
			)
			writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
			return
		}
	}

	user, err := h.users.FindByID(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	// Upgradeは失敗時にエラーレスポンスを書き込み済み
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed",
			slog.Int64("user_id", identity),
			slog.String("error", err.Error()),
		)
		return
	}

	transport := chat.NewWebSocketTransport(conn, h.config.Transport)
	if err := h.server.Serve(r.Context(), identity, transport); err != nil {
		slog.Warn("websocket connection ended with error",
			slog.Int64("user_id", identity),
			slog.String("error", err.Error()),
		)
	}
}

// onlineUsersResponse は接続中ユーザーのレスポンス。
type onlineUsersResponse struct {
	UserIDs []int64 `json:"user_ids"`
	Count   int     `json:"count"`
}

// OnlineUsers は現在接続中のユーザーIDを昇順で返す。
// GET /api/users/online
func (h *WSHandler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	ids := h.presence.Identities()
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, onlineUsersResponse{UserIDs: ids, Count: len(ids)})
}
