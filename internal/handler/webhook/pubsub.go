package webhook

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	watermark_repo "github.com/huavcjj/mailbridge/internal/domain/watermark"
)

type PubSubMessage struct {
	Message struct {
		Data        string            `json:"data"`
		MessageID   string            `json:"messageId"`
		Attributes  map[string]string `json:"attributes"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// GmailNotification is the JSON document carried base64-encoded in
// PubSubMessage.Message.Data.
type GmailNotification struct {
	EmailAddress string                `json:"emailAddress"`
	HistoryID    watermark_repo.Cursor `json:"historyId"`
}

// maxPushBody bounds a push request. Gmail notifications are a few hundred
// bytes.
const maxPushBody = 64 << 10

type PushHandler interface {
	HandlePush(hint watermark_repo.Cursor)
}

type PubSubWebhookHandler struct {
	pushHandler PushHandler
}

func NewPubSubWebhookHandler(pushHandler PushHandler) *PubSubWebhookHandler {
	return &PubSubWebhookHandler{
		pushHandler: pushHandler,
	}
}

// HandlePubSub acknowledges every push right away. Processing happens in the
// background, and malformed pushes are acknowledged too so Pub/Sub does not
// redeliver them.
func (h *PubSubWebhookHandler) HandlePubSub(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPushBody)
	notification, msg, err := decodePush(r)
	if err != nil {
		slog.Error("failed to decode pubsub message", "error", err)
	} else {
		slog.Info("received Gmail notification",
			"message_id", msg.Message.MessageID,
			"publish_time", msg.Message.PublishTime,
			"history_id", notification.HistoryID.String(),
		)
		h.pushHandler.HandlePush(notification.HistoryID)
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func decodePush(r *http.Request) (*GmailNotification, *PubSubMessage, error) {
	var msg PubSubMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		return nil, nil, fmt.Errorf("invalid push body: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(msg.Message.Data)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(msg.Message.Data)
		if err != nil {
			return nil, &msg, fmt.Errorf("invalid push data encoding: %w", err)
		}
	}

	var notification GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		return nil, &msg, fmt.Errorf("invalid push data: %w", err)
	}
	return &notification, &msg, nil
}
