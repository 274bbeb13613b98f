package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gmail_repo "github.com/huavcjj/mailbridge/internal/domain/gmail"
)

type fakeGmailRepo struct {
	mu     sync.Mutex
	topics []string
	labels [][]string
	err    error
}

func (r *fakeGmailRepo) ListHistory(context.Context, uint64, string) (*gmail_repo.History, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeGmailRepo) GetMessage(context.Context, string) (*gmail_repo.Message, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeGmailRepo) WatchMailbox(_ context.Context, topic string, labelIDs []string) (*gmail_repo.WatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.labels = append(r.labels, labelIDs)
	if r.err != nil {
		return nil, r.err
	}
	return &gmail_repo.WatchResult{HistoryID: 99, Expiration: time.Now().Add(7 * 24 * time.Hour)}, nil
}

func (r *fakeGmailRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}

func TestRenewUsesTopicAndLabel(t *testing.T) {
	repo := &fakeGmailRepo{}
	r := NewRenewer(repo, "projects/p/topics/gmail", "Label_3", 0)

	if err := r.Renew(context.Background()); err != nil {
		t.Fatalf("renew failed: %v", err)
	}
	if repo.topics[0] != "projects/p/topics/gmail" || len(repo.labels[0]) != 1 || repo.labels[0][0] != "Label_3" {
		t.Fatalf("unexpected watch call topic=%v labels=%v", repo.topics, repo.labels)
	}
}

func TestRenewDisabledWithoutTopic(t *testing.T) {
	repo := &fakeGmailRepo{}
	r := NewRenewer(repo, "", "INBOX", 0)

	if r.Enabled() {
		t.Fatalf("expected renewer to be disabled")
	}
	if err := r.Renew(context.Background()); err != nil {
		t.Fatalf("renew failed: %v", err)
	}
	if repo.calls() != 0 {
		t.Fatalf("expected no watch calls")
	}
}

func TestRenewWrapsError(t *testing.T) {
	wantErr := errors.New("permission denied")
	r := NewRenewer(&fakeGmailRepo{err: wantErr}, "topic", "", 0)

	if err := r.Renew(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestRunRenewsOnInterval(t *testing.T) {
	repo := &fakeGmailRepo{}
	r := NewRenewer(repo, "topic", "INBOX", 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, nil)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for repo.calls() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated renewals, got %d", repo.calls())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
