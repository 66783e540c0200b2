package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const loggedUserKey contextKey = "logged_user"

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// loggedUser is filled in by TokenAuth further down the chain.
type loggedUser struct {
	id int64
}

func setLoggedUser(ctx context.Context, u *domain.User) {
	if lu, ok := ctx.Value(loggedUserKey).(*loggedUser); ok {
		lu.id = u.ID
	}
}

// Logging logs every request once it has been served, with the
// authenticated user if there is one.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lu := &loggedUser{}
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), loggedUserKey, lu)))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.Int("status", rw.statusCode),
				zap.Int64("bytes", rw.written),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
			}
			if lu.id != 0 {
				fields = append(fields, zap.Int64("user_id", lu.id))
			}
			logger.Log(levelFor(rw.statusCode), "http request", fields...)
		})
	}
}

// levelFor logs client errors as warnings and server errors as errors.
func levelFor(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}
