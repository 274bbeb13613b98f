package notification

import (
	"strings"

	"github.com/emersion/go-message/mail"
	gmail_repo "github.com/huavcjj/mailbridge/internal/domain/gmail"
)

// SenderFilter accepts messages whose From address is on the allow-list.
// Header name and address are both matched case-sensitively.
type SenderFilter struct {
	allowed map[string]struct{}
}

func NewSenderFilter(senders []string) *SenderFilter {
	allowed := make(map[string]struct{}, len(senders))
	for _, s := range senders {
		if s = strings.TrimSpace(s); s != "" {
			allowed[s] = struct{}{}
		}
	}
	return &SenderFilter{allowed: allowed}
}

// Allowed returns the parsed sender address when it is allow-listed.
func (f *SenderFilter) Allowed(msg *gmail_repo.Message) (string, bool) {
	from, ok := msg.Header("From")
	if !ok {
		return "", false
	}

	addr, err := mail.ParseAddress(from)
	if err != nil || addr == nil || addr.Address == "" {
		return "", false
	}

	if _, ok := f.allowed[addr.Address]; !ok {
		return addr.Address, false
	}
	return addr.Address, true
}
