package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	gmail_domain "github.com/huavcjj/mailbridge/internal/domain/gmail"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

var ErrNotAuthorized = errors.New("gmail access has not been authorized yet")

// Authorizer keeps the Gmail OAuth token on disk and hands out clients
// authorized with it.
type Authorizer struct {
	config    *oauth2.Config
	tokenPath string
	timeout   time.Duration
	// state ties a callback to an auth URL this process handed out.
	state string

	mu    sync.Mutex
	token *oauth2.Token
}

var _ gmail_domain.Authorizer = (*Authorizer)(nil)

func NewAuthorizer(credentialsPath, tokenPath string, timeout time.Duration) (*Authorizer, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	return newAuthorizer(config, tokenPath, timeout)
}

func newAuthorizer(config *oauth2.Config, tokenPath string, timeout time.Duration) (*Authorizer, error) {
	state, err := newState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate oauth state: %w", err)
	}

	a := &Authorizer{
		config:    config,
		tokenPath: tokenPath,
		timeout:   timeout,
		state:     state,
	}

	tok, err := tokenFromFile(tokenPath)
	switch {
	case err == nil:
		a.token = tok
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("unable to read token file: %w", err)
	}

	return a, nil
}

func (a *Authorizer) Authorized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token != nil
}

func (a *Authorizer) Client(ctx context.Context) (*http.Client, error) {
	a.mu.Lock()
	tok := a.token
	a.mu.Unlock()
	if tok == nil {
		return nil, ErrNotAuthorized
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: a.timeout})
	src := &savingTokenSource{
		base:       a.config.TokenSource(ctx, tok),
		authorizer: a,
		last:       tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

func (a *Authorizer) AuthURL() string {
	return a.config.AuthCodeURL(a.state, oauth2.AccessTypeOffline)
}

// ValidState reports whether state is the one embedded in AuthURL.
func (a *Authorizer) ValidState(state string) bool {
	if state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(state), []byte(a.state)) == 1
}

// Exchange trades an authorization code for a token and stores it.
func (a *Authorizer) Exchange(ctx context.Context, code string) error {
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code: %w", err)
	}
	if err := a.setToken(tok); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (a *Authorizer) setToken(tok *oauth2.Token) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = tok
	return saveToken(a.tokenPath, tok)
}

// savingTokenSource writes refreshed tokens back to the token file.
type savingTokenSource struct {
	base       oauth2.TokenSource
	authorizer *Authorizer
	last       string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.authorizer.setToken(tok); err != nil {
			slog.Warn("failed to persist refreshed token", "path", s.authorizer.tokenPath, "error", err)
		}
	}
	return tok, nil
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}
