package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/chatline/internal/model"
)

// statusError はエラーレスポンスのstatus値。成功レスポンスの"success"と対になる。
const statusError = "error"

// ErrorResponseBody はAPIエラーレスポンスの形式。
// クライアントは成功時と同じくstatusで成否を判定し、messageを表示する。
type ErrorResponseBody struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse はAPIErrorをstatus付きのJSONで書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	err := json.NewEncoder(w).Encode(ErrorResponseBody{
		Status:   statusError,
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
	if err != nil {
		slog.Debug("failed to write error response", "code", apiErr.Code, "error", err)
	}
}

// WriteInternalServerError は500レスポンスを書き込む。原因はログにだけ残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
