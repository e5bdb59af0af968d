package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

const requestUserKey contextKey = "request_user"

// requestUser is filled in by AuthMiddleware further down the chain, whose
// context never reaches RequestLogger.
type requestUser struct {
	id string
}

func recordUser(ctx context.Context, userID string) {
	if u, ok := ctx.Value(requestUserKey).(*requestUser); ok {
		u.id = userID
	}
}

// RequestLogger logs one line per request once the response is written.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			user := &requestUser{}
			r = r.WithContext(context.WithValue(r.Context(), requestUserKey, user))

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
				"user_id", user.id,
			)
		})
	}
}
