package gmail

import (
	"context"
	"net/http"
	"time"
)

type Header struct {
	Name  string
	Value string
}

// Part is one node of a message payload tree. BodyData is base64url encoded
// exactly as returned by the API.
type Part struct {
	MimeType string
	Headers  []Header
	BodyData string
	Parts    []*Part
}

type Message struct {
	ID       string
	ThreadID string
	Snippet  string
	Payload  *Part
}

// Header returns the value of the first header whose name matches exactly.
func (m *Message) Header(name string) (string, bool) {
	if m == nil || m.Payload == nil {
		return "", false
	}
	for _, h := range m.Payload.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// HistoryEvent is one history record carrying added messages.
type HistoryEvent struct {
	ID         uint64
	MessageIDs []string
}

// History is the ordered result of a history list call. HistoryID is the
// mailbox's current history id at the time of the call.
type History struct {
	Events    []HistoryEvent
	HistoryID uint64
}

type WatchResult struct {
	HistoryID  uint64
	Expiration time.Time
}

type GmailRepo interface {
	ListHistory(ctx context.Context, startHistoryID uint64, labelID string) (*History, error)
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	WatchMailbox(ctx context.Context, topicName string, labelIDs []string) (*WatchResult, error)
}

// Authorizer hands out HTTP clients authorized for the mailbox.
type Authorizer interface {
	Client(ctx context.Context) (*http.Client, error)
}
