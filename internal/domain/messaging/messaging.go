package messaging

import (
	"context"
	"fmt"
)

type MessagingRepo interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// DeliveryError carries the platform response of a failed send.
type DeliveryError struct {
	RecipientID string
	StatusCode  int
	Body        string
	Err         error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery to %s failed (status %d): %v", e.RecipientID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("delivery to %s failed (status %d): %s", e.RecipientID, e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
