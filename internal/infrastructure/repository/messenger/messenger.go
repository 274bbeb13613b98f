package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	messaging_repo "github.com/huavcjj/mailbridge/internal/domain/messaging"
)

const DefaultAPIURL = "https://graph.facebook.com/v2.9/me/messages"

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 4 << 10

type messengerRepo struct {
	apiURL      string
	accessToken string
	client      *http.Client
}

var _ messaging_repo.MessagingRepo = (*messengerRepo)(nil)

type sendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

func NewMessengerRepo(apiURL, accessToken string, timeout time.Duration) (messaging_repo.MessagingRepo, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("messenger access token is empty")
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid messenger api url: %w", err)
	}

	return &messengerRepo{
		apiURL:      apiURL,
		accessToken: accessToken,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (r *messengerRepo) SendText(ctx context.Context, recipientID, text string) error {
	if recipientID == "" {
		return fmt.Errorf("recipient ID is empty")
	}

	var payload sendRequest
	payload.Recipient.ID = recipientID
	payload.Message.Text = text

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode send request: %w", err)
	}

	endpoint, _ := url.Parse(r.apiURL)
	q := endpoint.Query()
	q.Set("access_token", r.accessToken)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return &messaging_repo.DeliveryError{RecipientID: recipientID, Err: scrubToken(err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &messaging_repo.DeliveryError{RecipientID: recipientID, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return &messaging_repo.DeliveryError{
			RecipientID: recipientID,
			StatusCode:  resp.StatusCode,
			Body:        string(respBody),
		}
	}

	var result map[string]json.RawMessage
	if err := json.Unmarshal(respBody, &result); err != nil {
		return &messaging_repo.DeliveryError{
			RecipientID: recipientID,
			StatusCode:  resp.StatusCode,
			Body:        string(respBody),
			Err:         fmt.Errorf("response is not a JSON object: %w", err),
		}
	}
	if _, ok := result["error"]; ok {
		return &messaging_repo.DeliveryError{
			RecipientID: recipientID,
			StatusCode:  resp.StatusCode,
			Body:        string(respBody),
		}
	}

	return nil
}

// scrubToken drops the request URL, which carries the access token, from
// transport errors before they reach the logs.
func scrubToken(err error) error {
	if uerr, ok := err.(*url.Error); ok {
		return fmt.Errorf("%s request failed: %w", uerr.Op, uerr.Err)
	}
	return err
}
