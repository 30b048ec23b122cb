package httpserver

import (
	"context"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hwbot/internal/eventbus"
	"hwbot/internal/notifier"
	"hwbot/internal/storage"
	"hwbot/internal/watcher"
	"hwbot/pkg/logx"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

// Sources feed the read-only endpoints. Nil members render as empty.
type Sources struct {
	Watcher func() watcher.Snapshot
	History func() []notifier.HistoryItem
	Journal storage.Store
	Events  func() []eventbus.Event
}

type statusPayload struct {
	Watcher       *watcher.Snapshot      `json:"watcher,omitempty"`
	Notifications []notifier.HistoryItem `json:"notifications"`
	Now           time.Time              `json:"now"`
}

// NewRouter builds the status API. Every route requires token when it is set.
func NewRouter(src Sources, token string, pprof bool, log logx.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(bearerAuth(token))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		out := statusPayload{Notifications: []notifier.HistoryItem{}, Now: time.Now()}
		if src.Watcher != nil {
			snap := src.Watcher()
			out.Watcher = &snap
		}
		if src.History != nil {
			if h := src.History(); h != nil {
				out.Notifications = h
			}
		}
		respondJSON(w, http.StatusOK, out)
	})

	r.Get("/journal", func(w http.ResponseWriter, req *http.Request) {
		limit, err := parseLimit(req.URL.Query().Get("limit"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "BAD_LIMIT", err.Error())
			return
		}
		if src.Journal == nil {
			respondJSON(w, http.StatusOK, []storage.JournalEntry{})
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		entries, err := src.Journal.RecentJournal(ctx, limit)
		if err != nil {
			respondError(w, http.StatusServiceUnavailable, "JOURNAL_UNAVAILABLE", err.Error())
			return
		}
		if entries == nil {
			entries = []storage.JournalEntry{}
		}
		respondJSON(w, http.StatusOK, entries)
	})

	r.Get("/events", func(w http.ResponseWriter, _ *http.Request) {
		events := []eventbus.Event{}
		if src.Events != nil {
			if ev := src.Events(); ev != nil {
				events = ev
			}
		}
		respondJSON(w, http.StatusOK, events)
	})

	if pprof {
		r.Route("/debug/pprof", func(r chi.Router) {
			r.Get("/", hpprof.Index)
			r.Get("/cmdline", hpprof.Cmdline)
			r.Get("/profile", hpprof.Profile)
			r.Post("/symbol", hpprof.Symbol)
			r.Get("/symbol", hpprof.Symbol)
			r.Get("/trace", hpprof.Trace)
			r.Get("/{profile}", func(w http.ResponseWriter, req *http.Request) {
				hpprof.Handler(chi.URLParam(req, "profile")).ServeHTTP(w, req)
			})
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	})
	return r
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultJournalLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errBadLimit
	}
	if n > maxJournalLimit {
		n = maxJournalLimit
	}
	return n, nil
}

// bearerAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if got == tok {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
}

func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("took", time.Since(start)),
				logx.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
