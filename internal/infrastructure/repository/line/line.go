package line

import (
	"context"
	"fmt"
	"io"

	messaging_repo "github.com/huavcjj/mailbridge/internal/domain/messaging"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

type lineRepo struct {
	bot *messaging_api.MessagingApiAPI
}

var _ messaging_repo.MessagingRepo = (*lineRepo)(nil)

func NewLineRepo(channelToken string, options ...messaging_api.MessagingApiAPIOption) (messaging_repo.MessagingRepo, error) {
	if channelToken == "" {
		return nil, fmt.Errorf("line channel token is empty")
	}

	bot, err := messaging_api.NewMessagingApiAPI(channelToken, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging API: %w", err)
	}

	return &lineRepo{
		bot: bot,
	}, nil
}

func (r *lineRepo) SendText(ctx context.Context, recipientID, text string) error {
	if recipientID == "" {
		return fmt.Errorf("user ID is empty")
	}

	resp, _, err := r.bot.WithContext(ctx).PushMessageWithHttpInfo(
		&messaging_api.PushMessageRequest{
			To: recipientID,
			Messages: []messaging_api.MessageInterface{
				messaging_api.TextMessage{
					Text: text,
				},
			},
		},
		"",
	)
	if err != nil {
		derr := &messaging_repo.DeliveryError{RecipientID: recipientID, Err: err}
		if resp != nil {
			derr.StatusCode = resp.StatusCode
			if resp.Body != nil {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
				derr.Body = string(body)
			}
		}
		return derr
	}

	return nil
}
