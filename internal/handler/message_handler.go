package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/chatline/internal/chat"
	"github.com/hitoshi/chatline/internal/model"
)

// MessageLister は履歴取得に必要なインターフェース。
// repository.MessageRepositoryの部分集合として定義する。
type MessageLister interface {
	Recent(ctx context.Context, limit int) ([]*model.Message, error)
}

// MessageHandler はメッセージ履歴のHTTPハンドラー。
type MessageHandler struct {
	lister       MessageLister
	defaultLimit int
	location     *time.Location
}

// NewMessageHandler はMessageHandlerを生成する。
// defaultLimitはlimit未指定時の取得件数、locationはtimestampの表示タイムゾーン。
func NewMessageHandler(lister MessageLister, defaultLimit int, location *time.Location) *MessageHandler {
	if defaultLimit <= 0 || defaultLimit > model.MaxHistoryLimit {
		defaultLimit = model.MaxHistoryLimit
	}
	if location == nil {
		location = time.Local
	}
	return &MessageHandler{
		lister:       lister,
		defaultLimit: defaultLimit,
		location:     location,
	}
}

// messageResponse は履歴の1件分。配信メッセージと同じtimestamp形式を使う。
type messageResponse struct {
	ID           int64   `json:"id"`
	AuthorID     *int64  `json:"author_id"`
	AuthorName   string  `json:"author_name"`
	AuthorAvatar *string `json:"author_avatar"`
	Body         string  `json:"body"`
	Timestamp    string  `json:"timestamp"`
}

// messageListResponse はメッセージ履歴のレスポンス。
type messageListResponse struct {
	Messages []messageResponse `json:"messages"`
}

// ListMessages は最新のメッセージを新しい順に返す。
// GET /api/messages?limit=N
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("limit must be a positive integer"))
			return
		}
		limit = min(n, model.MaxHistoryLimit)
	}

	messages, err := h.lister.Recent(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := messageListResponse{Messages: make([]messageResponse, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, messageResponse{
			ID:           m.ID,
			AuthorID:     m.AuthorID,
			AuthorName:   m.AuthorName,
			AuthorAvatar: m.AuthorAvatar,
			Body:         m.Body,
			Timestamp:    m.CreatedAt.In(h.location).Format(chat.TimestampLayout),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
