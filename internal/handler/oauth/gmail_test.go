package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const validState = "3f9a0c1d"

type fakeExchanger struct {
	codes []string
	err   error
}

func (e *fakeExchanger) ValidState(state string) bool {
	return state == validState
}

func (e *fakeExchanger) Exchange(_ context.Context, code string) error {
	e.codes = append(e.codes, code)
	return e.err
}

type fakeRenewer struct {
	calls int
	err   error
}

func (r *fakeRenewer) Renew(context.Context) error {
	r.calls++
	return r.err
}

func TestHandleCallbackExchangesCodeAndRenewsWatch(t *testing.T) {
	exchanger := &fakeExchanger{}
	renewer := &fakeRenewer{}
	h := NewGmailOAuthHandler(exchanger, renewer)

	rec := httptest.NewRecorder()
	h.HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/oauth/gmail/callback?code=abc&state="+validState, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "complete") {
		t.Fatalf("expected success page, got %q", rec.Body.String())
	}
	if len(exchanger.codes) != 1 || exchanger.codes[0] != "abc" {
		t.Fatalf("expected code abc exchanged, got %v", exchanger.codes)
	}
	if renewer.calls != 1 {
		t.Fatalf("expected one watch renewal, got %d", renewer.calls)
	}
}

func TestHandleCallbackWatchFailureStillSucceeds(t *testing.T) {
	h := NewGmailOAuthHandler(&fakeExchanger{}, &fakeRenewer{err: errors.New("topic missing")})

	rec := httptest.NewRecorder()
	h.HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/oauth/gmail/callback?code=abc&state="+validState, nil))

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "complete") {
		t.Fatalf("expected success page, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandleCallbackExchangeFailure(t *testing.T) {
	renewer := &fakeRenewer{}
	h := NewGmailOAuthHandler(&fakeExchanger{err: errors.New("invalid_grant")}, renewer)

	rec := httptest.NewRecorder()
	h.HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/oauth/gmail/callback?code=abc&state="+validState, nil))

	if !strings.Contains(rec.Body.String(), "failed") {
		t.Fatalf("expected error page, got %q", rec.Body.String())
	}
	if renewer.calls != 0 {
		t.Fatalf("expected no watch renewal after failed exchange")
	}
}

func TestHandleCallbackRejectsMissingCode(t *testing.T) {
	exchanger := &fakeExchanger{}
	h := NewGmailOAuthHandler(exchanger, nil)

	for _, query := range []string{"", "?state=" + validState, "?error=access_denied"} {
		rec := httptest.NewRecorder()
		h.HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/oauth/gmail/callback"+query, nil))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("query %q: expected 400, got %d", query, rec.Code)
		}
	}
	if len(exchanger.codes) != 0 {
		t.Fatalf("expected no exchange, got %v", exchanger.codes)
	}
}

func TestHandleCallbackRejectsForeignState(t *testing.T) {
	exchanger := &fakeExchanger{}
	renewer := &fakeRenewer{}
	h := NewGmailOAuthHandler(exchanger, renewer)

	for _, query := range []string{"?code=other-code", "?code=other-code&state=forged", "?code=other-code&state=mailbridge"} {
		rec := httptest.NewRecorder()
		h.HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/oauth/gmail/callback"+query, nil))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("query %q: expected 400, got %d", query, rec.Code)
		}
	}
	if len(exchanger.codes) != 0 {
		t.Fatalf("expected no exchange for foreign state, got %v", exchanger.codes)
	}
	if renewer.calls != 0 {
		t.Fatalf("expected no watch renewal, got %d", renewer.calls)
	}
}
