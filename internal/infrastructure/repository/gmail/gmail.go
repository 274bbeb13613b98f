package gmail

import (
	"context"
	"fmt"
	"time"

	gmail_repo "github.com/huavcjj/mailbridge/internal/domain/gmail"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const historyTypeMessageAdded = "messageAdded"

type gmailRepo struct {
	authorizer gmail_repo.Authorizer
	user       string
	opts       []option.ClientOption
}

var _ gmail_repo.GmailRepo = (*gmailRepo)(nil)

func NewGmailRepo(authorizer gmail_repo.Authorizer, user string, opts ...option.ClientOption) gmail_repo.GmailRepo {
	if user == "" {
		user = "me"
	}
	return &gmailRepo{
		authorizer: authorizer,
		user:       user,
		opts:       opts,
	}
}

// getService creates a Gmail service using the authorizer's current token
func (r *gmailRepo) getService(ctx context.Context) (*gmail.Service, error) {
	client, err := r.authorizer.Client(ctx)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, r.opts...)
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create gmail service: %w", err)
	}
	return srv, nil
}

func (r *gmailRepo) ListHistory(ctx context.Context, startHistoryID uint64, labelID string) (*gmail_repo.History, error) {
	service, err := r.getService(ctx)
	if err != nil {
		return nil, err
	}

	call := service.Users.History.List(r.user).
		StartHistoryId(startHistoryID).
		HistoryTypes(historyTypeMessageAdded)
	if labelID != "" {
		call = call.LabelId(labelID)
	}

	result := &gmail_repo.History{}
	err = call.Pages(ctx, func(page *gmail.ListHistoryResponse) error {
		if page.HistoryId > result.HistoryID {
			result.HistoryID = page.HistoryId
		}
		for _, h := range page.History {
			event := gmail_repo.HistoryEvent{ID: h.Id}
			for _, added := range h.MessagesAdded {
				if added.Message != nil {
					event.MessageIDs = append(event.MessageIDs, added.Message.Id)
				}
			}
			if len(event.MessageIDs) == 0 {
				for _, m := range h.Messages {
					event.MessageIDs = append(event.MessageIDs, m.Id)
				}
			}
			if len(event.MessageIDs) == 0 {
				continue
			}
			result.Events = append(result.Events, event)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve history: %w", err)
	}

	return result, nil
}

func (r *gmailRepo) GetMessage(ctx context.Context, messageID string) (*gmail_repo.Message, error) {
	service, err := r.getService(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := service.Users.Messages.Get(r.user, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve message: %w", err)
	}

	return &gmail_repo.Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Payload:  convertPart(msg.Payload),
	}, nil
}

func (r *gmailRepo) WatchMailbox(ctx context.Context, topicName string, labelIDs []string) (*gmail_repo.WatchResult, error) {
	service, err := r.getService(ctx)
	if err != nil {
		return nil, err
	}

	watchRequest := &gmail.WatchRequest{
		TopicName:         topicName,
		LabelIds:          labelIDs,
		LabelFilterAction: "include",
	}

	resp, err := service.Users.Watch(r.user, watchRequest).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to watch mailbox: %w", err)
	}

	return &gmail_repo.WatchResult{
		HistoryID:  resp.HistoryId,
		Expiration: time.UnixMilli(resp.Expiration),
	}, nil
}

func convertPart(p *gmail.MessagePart) *gmail_repo.Part {
	if p == nil {
		return nil
	}

	part := &gmail_repo.Part{MimeType: p.MimeType}
	for _, h := range p.Headers {
		part.Headers = append(part.Headers, gmail_repo.Header{Name: h.Name, Value: h.Value})
	}
	if p.Body != nil {
		part.BodyData = p.Body.Data
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, convertPart(child))
	}
	return part
}
