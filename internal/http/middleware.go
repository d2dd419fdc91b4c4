package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/logging"
	"github.com/Wass76/Uqar-sub002/internal/metrics"
)

const (
	headerRequestID  = "X-Request-ID"
	headerPharmacyID = "X-Pharmacy-ID"
	headerUserID     = "X-User-ID"
	headerUsername   = "X-Username"
	headerSessionID  = "X-Session-ID"
)

type actorKey struct{}

// RequestID propagates the caller's X-Request-ID or mints a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		ctx := logging.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Actor reads the identity headers set by the authenticating gateway.
// Requests without a pharmacy and user are rejected.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pharmacyID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(headerPharmacyID)), 10, 64)
		if err != nil || pharmacyID <= 0 {
			writeError(w, http.StatusUnauthorized, headerPharmacyID+" header is required")
			return
		}
		userID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(headerUserID)), 10, 64)
		if err != nil || userID <= 0 {
			writeError(w, http.StatusUnauthorized, headerUserID+" header is required")
			return
		}
		actor := domain.Actor{
			PharmacyID: pharmacyID,
			UserID:     userID,
			Username:   strings.TrimSpace(r.Header.Get(headerUsername)),
			IPAddress:  clientIP(r),
			SessionID:  strings.TrimSpace(r.Header.Get(headerSessionID)),
		}
		ctx := logging.ContextWithActor(r.Context(), pharmacyID, userID)
		ctx = context.WithValue(ctx, actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) domain.Actor {
	actor, _ := r.Context().Value(actorKey{}).(domain.Actor)
	return actor
}

// clientIP is the peer address after chi's RealIP has run, without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestLogger logs every request and records it in the HTTP metrics under
// its route pattern.
func RequestLogger(logger *logging.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	log := logger.WithComponent("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}
			duration := time.Since(started)
			log.HTTPRequest(r.Context(), r.Method, path, status, duration, clientIP(r))
			m.RecordHTTPRequest(r.Method, path, status, duration)
		})
	}
}

func Recoverer(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Panic(r.Context(), rec)
					writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func Timeout(next http.Handler) http.Handler {
	return middleware.Timeout(60 * time.Second)(next)
}

func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Content-Type", "Authorization",
			headerRequestID, headerPharmacyID, headerUserID, headerUsername, headerSessionID,
		},
		ExposedHeaders: []string{headerRequestID, "Content-Disposition"},
		MaxAge:         300,
	})
}
