// Package history owns the mailbox history cursor and turns push hints into
// ordered batches of newly added messages.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	gmail_repo "github.com/huavcjj/mailbridge/internal/domain/gmail"
	watermark_repo "github.com/huavcjj/mailbridge/internal/domain/watermark"
	"google.golang.org/api/googleapi"
)

// FetchError marks a failed call to the history API. The push that caused it
// is dropped; the next push resumes from the persisted cursor.
type FetchError struct {
	Since watermark_repo.Cursor
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch history since %s: %v", e.Since, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Batch struct {
	Events []gmail_repo.HistoryEvent
	// Cursor is the value current after this fetch.
	Cursor watermark_repo.Cursor
	// ColdStart is set when no cursor existed before the fetch.
	ColdStart bool
}

type Fetcher struct {
	gmailRepo gmail_repo.GmailRepo
	store     watermark_repo.WatermarkRepo
	labelID   string
	bootstrap watermark_repo.Cursor

	mu      sync.Mutex
	current watermark_repo.Cursor

	// saveMu serializes writes so a slow save can never land after a newer one.
	saveMu sync.Mutex
	saves  sync.WaitGroup
}

// NewFetcher loads the persisted cursor. A store that cannot be read is
// logged and treated as a first run.
func NewFetcher(ctx context.Context, gmailRepo gmail_repo.GmailRepo, store watermark_repo.WatermarkRepo, labelID string, bootstrap watermark_repo.Cursor) *Fetcher {
	f := &Fetcher{
		gmailRepo: gmailRepo,
		store:     store,
		labelID:   labelID,
		bootstrap: bootstrap,
	}

	cursor, ok, err := store.Load(ctx)
	switch {
	case err != nil:
		slog.Error("failed to load history cursor, starting cold", "error", err)
	case ok:
		f.current = cursor
	}

	slog.Info("history fetcher initialized", "history_id", f.current.String(), "cold_start", f.current.IsZero())
	return f
}

// Current returns the cursor and whether one exists.
func (f *Fetcher) Current() (watermark_repo.Cursor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, !f.current.IsZero()
}

// Fetch lists the messages added since the current cursor. Without a cursor
// only the most recent event is returned so a first deployment does not
// replay the mailbox.
func (f *Fetcher) Fetch(ctx context.Context, hint watermark_repo.Cursor) (*Batch, error) {
	since, hasCursor := f.Current()
	start := since
	if !hasCursor {
		start = f.bootstrap
	}

	history, err := f.gmailRepo.ListHistory(ctx, uint64(start), f.labelID)
	if err != nil {
		if !hasCursor && isNotFound(err) && !hint.IsZero() {
			slog.Warn("bootstrap history id rejected, adopting push hint",
				"bootstrap_history_id", start.String(),
				"history_id", hint.String(),
			)
			return &Batch{Cursor: f.advance(hint), ColdStart: true}, nil
		}
		return nil, &FetchError{Since: start, Err: err}
	}

	next := watermark_repo.Cursor(history.HistoryID)
	if hint > next {
		next = hint
	}

	events := history.Events
	if !hasCursor && len(events) > 1 {
		events = events[len(events)-1:]
	}

	return &Batch{
		Events:    events,
		Cursor:    f.advance(next),
		ColdStart: !hasCursor,
	}, nil
}

// advance adopts next if it is ahead of the current cursor, schedules a save
// and returns the resulting cursor.
func (f *Fetcher) advance(next watermark_repo.Cursor) watermark_repo.Cursor {
	f.mu.Lock()
	if next <= f.current {
		cur := f.current
		f.mu.Unlock()
		return cur
	}
	f.current = next
	f.mu.Unlock()

	f.saves.Add(1)
	go f.persist()
	return next
}

func (f *Fetcher) persist() {
	defer f.saves.Done()

	f.saveMu.Lock()
	defer f.saveMu.Unlock()

	cursor, _ := f.Current()
	if err := f.store.Save(context.Background(), cursor); err != nil {
		slog.Error("failed to persist history cursor", "history_id", cursor.String(), "error", err)
	}
}

// WaitSaves blocks until scheduled cursor writes have finished.
func (f *Fetcher) WaitSaves() {
	f.saves.Wait()
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
