package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	htmlError   = `<html><body><h1>❌ Authorization failed</h1></body></html>`
	htmlSuccess = `<html><body><h1>✅ Authorization complete</h1><p>New mail will now be forwarded.</p></body></html>`

	exchangeTimeout = 30 * time.Second
)

type CodeExchanger interface {
	ValidState(state string) bool
	Exchange(ctx context.Context, code string) error
}

// WatchRenewer is called once the mailbox is authorized so push
// notifications start without waiting for the next renewal tick.
type WatchRenewer interface {
	Renew(ctx context.Context) error
}

type GmailOAuthHandler struct {
	exchanger CodeExchanger
	renewer   WatchRenewer
}

func NewGmailOAuthHandler(exchanger CodeExchanger, renewer WatchRenewer) *GmailOAuthHandler {
	return &GmailOAuthHandler{
		exchanger: exchanger,
		renewer:   renewer,
	}
}

func (h *GmailOAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		slog.Error("gmail authorization denied", "error", errParam)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, htmlError)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Error("missing code")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if !h.exchanger.ValidState(r.URL.Query().Get("state")) {
		slog.Error("oauth state mismatch, ignoring callback", "remote_addr", r.RemoteAddr)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()

	if err := h.exchanger.Exchange(ctx, code); err != nil {
		slog.Error("failed to complete Gmail auth", "error", err)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, htmlError)
		return
	}
	slog.Info("gmail authorization stored")

	if h.renewer != nil {
		if err := h.renewer.Renew(ctx); err != nil {
			slog.Warn("failed to setup Gmail watch, push notifications may not work", "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, htmlSuccess)
}
