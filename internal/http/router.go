package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Auth       *AuthHandler
	Sync       *SyncHandler
	Bindings   *BindingHandler
	Account    *AccountHandler
	Admin      *AdminHandler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Auth != nil {
		mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.Login(w, r)
		})
		mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.Logout(w, r)
		})
	}

	if cfg.Sync != nil {
		mux.HandleFunc("/resources", requireMethod(http.MethodGet, cfg.Sync.Resources))
		mux.HandleFunc("/entities", requireMethod(http.MethodPost, cfg.Sync.Entities))
		mux.HandleFunc("/store", requireMethod(http.MethodPost, cfg.Sync.Store))
		mux.HandleFunc("/refresh", requireMethod(http.MethodGet, cfg.Sync.Refresh))
		mux.HandleFunc("/merge", requireMethod(http.MethodPost, cfg.Sync.Merge))
		mux.HandleFunc("/identifiers", requireMethod(http.MethodPost, cfg.Sync.Identifiers))
	}

	if cfg.Bindings != nil {
		mux.HandleFunc("/bindings/first", requireMethod(http.MethodPost, cfg.Bindings.First))
		mux.HandleFunc("/bindings/all", requireMethod(http.MethodPost, cfg.Bindings.All))
		mux.HandleFunc("/bindings/next-date", requireMethod(http.MethodPost, cfg.Bindings.NextDate))
		mux.HandleFunc("/appointments/query", requireMethod(http.MethodPost, cfg.Bindings.Appointments))
		mux.HandleFunc("/conflicts", requireMethod(http.MethodGet, cfg.Bindings.Conflicts))
	}

	if cfg.Account != nil {
		mux.HandleFunc("/account/password", requireMethod(http.MethodPost, cfg.Account.ChangePassword))
		mux.HandleFunc("/account/can-change-password", requireMethod(http.MethodGet, cfg.Account.CanChangePassword))
		mux.HandleFunc("/account/name", requireMethod(http.MethodPost, cfg.Account.ChangeName))
		mux.HandleFunc("/account/email/confirm", requireMethod(http.MethodPost, cfg.Account.ConfirmEmail))
		mux.HandleFunc("/account/email", requireMethod(http.MethodPost, cfg.Account.ChangeEmail))
		mux.HandleFunc("/account/username", requireMethod(http.MethodGet, cfg.Account.Username))
	}

	if cfg.Admin != nil {
		mux.HandleFunc("/restart", requireMethod(http.MethodPost, cfg.Admin.Restart))
	}

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

func requireMethod(method string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			methodNotAllowed(w, method)
			return
		}
		handler(w, r)
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
