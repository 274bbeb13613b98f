package webhook

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

type messengerCallback struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string            `json:"id"`
		Time      int64             `json:"time"`
		Messaging []json.RawMessage `json:"messaging"`
	} `json:"entry"`
}

type messengerEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message *struct {
		Text string `json:"text"`
	} `json:"message"`
}

type MessengerWebhookHandler struct {
	verifyToken string
}

func NewMessengerWebhookHandler(verifyToken string) *MessengerWebhookHandler {
	return &MessengerWebhookHandler{
		verifyToken: verifyToken,
	}
}

func (h *MessengerWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleVerify(w, r)
	case http.MethodPost:
		h.handleEvents(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *MessengerWebhookHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	slog.Info("Messenger webhook verify")

	query := r.URL.Query()
	if h.verifyToken == "" || query.Get("hub.verify_token") != h.verifyToken {
		slog.Warn("messenger verification rejected", "mode", query.Get("hub.mode"))
		http.Error(w, "Error, wrong validation token", http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, query.Get("hub.challenge"))
}

// handleEvents logs incoming events; the sender ids are what operators put
// into RECIPIENT_IDS.
func (h *MessengerWebhookHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	var cb messengerCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		slog.Error("failed to decode messenger callback", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	for _, entry := range cb.Entry {
		for _, raw := range entry.Messaging {
			var event messengerEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				slog.Warn("failed to decode messenger event", "entry_id", entry.ID, "error", err)
				continue
			}
			attrs := []any{"entry_id", entry.ID, "sender_id", event.Sender.ID}
			if event.Message != nil {
				attrs = append(attrs, "text", event.Message.Text)
			}
			slog.Info("received messenger event", attrs...)
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
