package http

import (
	"context"
	"net/http"
	"strings"
)

type RouterConfig struct {
	Queue      *QueueHandler
	Validate   *ValidateHandler
	Metrics    http.Handler
	HealthPing func(ctx context.Context) error
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Queue != nil {
		mux.HandleFunc("/queue/entries", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Queue.ListActive(w, r)
			case http.MethodPost:
				cfg.Queue.AddEntry(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/queue/entries/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/queue/entries/")
			if rest == "" {
				http.NotFound(w, r)
				return
			}

			if id, found := strings.CutSuffix(rest, "/status"); found {
				r = r.WithContext(ContextWithEntryID(r.Context(), id))
				if r.Method != http.MethodPatch {
					methodNotAllowed(w, http.MethodPatch)
					return
				}
				cfg.Queue.UpdateStatus(w, r)
				return
			}

			if strings.Contains(rest, "/") {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithEntryID(r.Context(), rest))
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Queue.GetEntry(w, r)
		})
		mux.HandleFunc("/queue/next", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Queue.CallNext(w, r)
		})
		mux.HandleFunc("/queue/clear", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Queue.ClearQueue(w, r)
		})
		mux.HandleFunc("/queue/status", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Queue.GetStatus(w, r)
			case http.MethodPut:
				cfg.Queue.UpdateQueueStatus(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut)
			}
		})
		mux.HandleFunc("/queue/codes/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/queue/codes/")
			if rest == "" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}

			if code, found := strings.CutSuffix(rest, "/valid"); found {
				r = r.WithContext(ContextWithCode(r.Context(), code))
				cfg.Queue.CheckCode(w, r)
				return
			}
			if strings.Contains(rest, "/") {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithCode(r.Context(), rest))
			cfg.Queue.GetEntryByCode(w, r)
		})
	}

	if cfg.Validate != nil {
		mux.HandleFunc("/queue/validate", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Validate.ValidateQR(w, r)
		})
	}

	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		if cfg.HealthPing != nil {
			if err := cfg.HealthPing(r.Context()); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
