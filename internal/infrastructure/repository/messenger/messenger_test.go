package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	messaging_repo "github.com/huavcjj/mailbridge/internal/domain/messaging"
)

func TestSendTextPostsRecipientAndText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.URL.Query().Get("access_token"); got != "page-token" {
			t.Errorf("expected access_token query, got %q", got)
		}
		var payload struct {
			Recipient struct {
				ID string `json:"id"`
			} `json:"recipient"`
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if payload.Recipient.ID != "psid-1" || payload.Message.Text != "hello" {
			t.Errorf("unexpected payload %+v", payload)
		}
		fmt.Fprint(w, `{"recipient_id":"psid-1","message_id":"mid.1"}`)
	}))
	defer srv.Close()

	repo, err := NewMessengerRepo(srv.URL, "page-token", time.Second)
	if err != nil {
		t.Fatalf("new repo failed: %v", err)
	}
	if err := repo.SendText(context.Background(), "psid-1", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
}

func TestSendTextFailsOnErrorFieldWithStatusOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"message":"Invalid OAuth access token.","code":190}}`)
	}))
	defer srv.Close()

	repo, _ := NewMessengerRepo(srv.URL, "page-token", time.Second)
	err := repo.SendText(context.Background(), "psid-1", "hello")

	var derr *messaging_repo.DeliveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if derr.StatusCode != http.StatusOK || !strings.Contains(derr.Body, "Invalid OAuth") {
		t.Fatalf("unexpected delivery error %+v", derr)
	}
}

func TestSendTextFailsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad recipient"}}`)
	}))
	defer srv.Close()

	repo, _ := NewMessengerRepo(srv.URL, "page-token", time.Second)
	err := repo.SendText(context.Background(), "psid-1", "hello")

	var derr *messaging_repo.DeliveryError
	if !errors.As(err, &derr) || derr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 DeliveryError, got %v", err)
	}
}

func TestSendTextFailsOnNonObjectBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `ok`)
	}))
	defer srv.Close()

	repo, _ := NewMessengerRepo(srv.URL, "page-token", time.Second)
	if err := repo.SendText(context.Background(), "psid-1", "hello"); err == nil {
		t.Fatalf("expected error for non-JSON body")
	}
}

func TestSendTextTransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	repo, _ := NewMessengerRepo(url, "secret-token", time.Second)
	err := repo.SendText(context.Background(), "psid-1", "hello")
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("error leaks access token: %v", err)
	}
}

func TestNewMessengerRepoRequiresToken(t *testing.T) {
	if _, err := NewMessengerRepo("", "", time.Second); err == nil {
		t.Fatalf("expected error for empty token")
	}
}
