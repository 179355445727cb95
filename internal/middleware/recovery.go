package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
)

// PanicRecorder は回復したpanicを記録する。metrics.Collectorが実装する。
type PanicRecorder interface {
	PanicRecovered(route string)
}

// NewRecoveryMiddleware はハンドラーのpanicを回復して500を返すミドルウェアを生成する。
// recorderがnilの場合はログだけを残す。
// http.ErrAbortHandlerはnet/httpに任せるため再度panicさせる。
func NewRecoveryMiddleware(recorder PanicRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				route := routePattern(r)
				slog.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("route", route),
					slog.String("stack", string(debug.Stack())),
				)
				if recorder != nil {
					recorder.PanicRecovered(route)
				}
				// WebSocketへアップグレード済みの接続には書き込めない
				if r.Header.Get("Upgrade") == "" {
					WriteInternalServerError(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// routePattern はメトリクスのラベルに使うルートパターンを返す。
// /ws/{user_id}のようにパスパラメーターを含めない。
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
