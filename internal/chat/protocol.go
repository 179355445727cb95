// Package chat はリアルタイムチャットのファンアウト処理を提供する。
//
// ユーザーごとの常時接続を Registry で管理し、受信したメッセージを
// MessageStore に保存したうえで、接続中の全ユーザーへ Broadcaster で配信する。
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/chatline/internal/model"
)

// TimestampLayout は配信メッセージのtimestamp形式（YYYY-MM-DD HH:MM:SS）。
const TimestampLayout = "2006-01-02 15:04:05"

// MaxBodyLength はメッセージ本文の最大文字数（rune数）。
const MaxBodyLength = 4096

// MaxAuthorNameLength は送信者名の最大文字数（rune数）。messages.usernameの列幅と同じ。
const MaxAuthorNameLength = 64

// maxEscapedRuneBytes は1文字がJSON文字列内で占める最大バイト数（サロゲートペアの\uXXXX\uXXXX）。
const maxEscapedRuneBytes = 12

// envelopeHeadroom はauthor_idやキー名などbodyとauthor_name以外に見込むバイト数。
const envelopeHeadroom = 1024

// DefaultReadLimit は検証を通るメッセージを必ず受信できる読み込み上限（バイト）。
// これより小さい上限では正当なメッセージで接続が切断される。
const DefaultReadLimit int64 = (MaxBodyLength+MaxAuthorNameLength)*maxEscapedRuneBytes + envelopeHeadroom

// 受信メッセージの検証エラー
var (
	ErrMissingAuthorID   = errors.New("author_id is required")
	ErrMissingAuthorName = errors.New("author_name is required")
	ErrMissingBody       = errors.New("body is required")
	ErrBodyTooLong       = fmt.Errorf("body exceeds %d characters", MaxBodyLength)
	ErrAuthorNameTooLong = fmt.Errorf("author_name exceeds %d characters", MaxAuthorNameLength)
	ErrAuthorMismatch    = errors.New("author_id does not match the connection identity")
)

// InboundMessage はクライアントから受信するメッセージ。
type InboundMessage struct {
	AuthorID   *int64 `json:"author_id"`
	AuthorName string `json:"author_name"`
	Body       string `json:"body"`
}

// OutboundMessage は接続中の全クライアントへ配信するメッセージ。
// 受信内容にサーバーが採番したtimestampを加えたもの。
type OutboundMessage struct {
	AuthorID   int64  `json:"author_id"`
	AuthorName string `json:"author_name"`
	Body       string `json:"body"`
	Timestamp  string `json:"timestamp"`
}

// errorFrame は送信元の接続にだけ返すプロトコルエラー。
type errorFrame struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeInbound は受信したJSONをInboundMessageに変換する。
func DecodeInbound(data []byte) (*InboundMessage, error) {
	var in InboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("malformed json: %w", err)
	}
	return &in, nil
}

// Validate は必須フィールドと送信者の一致を検証する。
// author_idは接続時に確定したidentityと一致しなければならない。
func (m *InboundMessage) Validate(identity int64) error {
	if m.AuthorID == nil {
		return ErrMissingAuthorID
	}
	if strings.TrimSpace(m.AuthorName) == "" {
		return ErrMissingAuthorName
	}
	if utf8.RuneCountInString(m.AuthorName) > MaxAuthorNameLength {
		return ErrAuthorNameTooLong
	}
	if strings.TrimSpace(m.Body) == "" {
		return ErrMissingBody
	}
	if utf8.RuneCountInString(m.Body) > MaxBodyLength {
		return ErrBodyTooLong
	}
	if *m.AuthorID != identity {
		return ErrAuthorMismatch
	}
	return nil
}

// NewOutboundMessage は保存済みメッセージから配信用メッセージを組み立てる。
// author_idは保存時にNULLへ落ちた場合でも受信値をそのまま使う。
func NewOutboundMessage(authorID int64, saved *model.Message, loc *time.Location) OutboundMessage {
	if loc == nil {
		loc = time.Local
	}
	return OutboundMessage{
		AuthorID:   authorID,
		AuthorName: saved.AuthorName,
		Body:       saved.Body,
		Timestamp:  saved.CreatedAt.In(loc).Format(TimestampLayout),
	}
}

// EncodeOutbound は配信用メッセージをJSONに変換する。
func EncodeOutbound(msg OutboundMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// EncodeError はAPIErrorをエラーフレームのJSONに変換する。
func EncodeError(apiErr *model.APIError) []byte {
	data, err := json.Marshal(errorFrame{Error: errorBody{Code: apiErr.Code, Message: apiErr.Message}})
	if err != nil {
		// 文字列フィールドのみのため到達しない
		return []byte(`{"error":{"code":"INTERNAL_ERROR","message":"internal error"}}`)
	}
	return data
}
