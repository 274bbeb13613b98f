package webhook

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// LineWebhookHandler logs LINE events so operators can discover the user ids
// to configure as recipients.
type LineWebhookHandler struct {
	channelSecret string
}

func NewLineWebhookHandler(channelSecret string) *LineWebhookHandler {
	return &LineWebhookHandler{
		channelSecret: channelSecret,
	}
}

func (h *LineWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	// Allow GET for verification
	if r.Method == http.MethodGet {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse webhook request (includes signature validation)
	cb, err := webhook.ParseRequest(h.channelSecret, r)
	if err != nil {
		slog.Error("failed to parse webhook request", "error", err)
		http.Error(w, "Failed to parse request", http.StatusBadRequest)
		return
	}

	for _, event := range cb.Events {
		switch e := event.(type) {
		case webhook.MessageEvent:
			slog.Info("received LINE message", "user_id", sourceUserID(e.Source))
		case webhook.FollowEvent:
			slog.Info("received LINE follow", "user_id", sourceUserID(e.Source))
		default:
			slog.Info("received unhandled event", "type", fmt.Sprintf("%T", event))
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func sourceUserID(source webhook.SourceInterface) string {
	sourceData, _ := json.Marshal(source)
	var sourceMap map[string]interface{}
	if err := json.Unmarshal(sourceData, &sourceMap); err == nil {
		if uid, ok := sourceMap["userId"].(string); ok {
			return uid
		}
	}
	return ""
}
