package notification

import (
	"context"
	"fmt"

	gmail_repo "github.com/huavcjj/mailbridge/internal/domain/gmail"
)

type Resolver struct {
	gmailRepo gmail_repo.GmailRepo
}

func NewResolver(gmailRepo gmail_repo.GmailRepo) *Resolver {
	return &Resolver{gmailRepo: gmailRepo}
}

func (r *Resolver) Resolve(ctx context.Context, messageID string) (*gmail_repo.Message, error) {
	msg, err := r.gmailRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}
