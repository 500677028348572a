// Package auth obtains Google OAuth2 tokens for the Drive, Docs, Sheets and
// Slides read-only scopes, persisting them in a local token file.
package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/rohankatakam/reqtaker/internal/errors"
)

type Authenticator struct {
	config *oauth2.Config
	store  *TokenStore
	flow   *LocalServerFlow
	logger *slog.Logger
}

// NewAuthenticator loads the OAuth client from credentialsFile. Interactive
// prompts are written to out.
func NewAuthenticator(credentialsFile, tokenFile string, out io.Writer, timeout time.Duration) (*Authenticator, error) {
	cfg, err := LoadClientConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	return newAuthenticator(cfg, NewTokenStore(tokenFile), &LocalServerFlow{Config: cfg, Out: out, Timeout: timeout}), nil
}

func newAuthenticator(cfg *oauth2.Config, store *TokenStore, flow *LocalServerFlow) *Authenticator {
	return &Authenticator{
		config: cfg,
		store:  store,
		flow:   flow,
		logger: slog.Default().With("component", "auth"),
	}
}

// TokenSource returns a source backed by the stored token. An expired
// token is refreshed; when there is nothing usable and interactive is
// true the browser flow runs. Every new token is written back to disk.
func (a *Authenticator) TokenSource(ctx context.Context, interactive bool) (oauth2.TokenSource, error) {
	tok, err := a.store.Load()
	if err != nil {
		return nil, errors.AuthError(err, "failed to load Google token")
	}

	if tok != nil {
		if tok.Valid() {
			a.logger.Debug("using stored Google token", "path", a.store.Path)
			return a.wrap(ctx, tok), nil
		}
		if tok.RefreshToken != "" {
			refreshed, err := a.config.TokenSource(ctx, tok).Token()
			if err == nil {
				a.logger.Info("refreshed Google token")
				if err := a.store.Save(refreshed); err != nil {
					a.logger.Warn("failed to save refreshed token", "error", err)
				}
				return a.wrap(ctx, refreshed), nil
			}
			a.logger.Warn("token refresh failed, re-authenticating", "error", err)
		}
	}

	if !interactive {
		return nil, errors.New(errors.ErrorTypeAuth, errors.SeverityCritical,
			"no valid Google token. Run: reqtaker login")
	}
	tok, err = a.Login(ctx)
	if err != nil {
		return nil, err
	}
	return a.wrap(ctx, tok), nil
}

// Login always runs the browser flow and stores the resulting token.
func (a *Authenticator) Login(ctx context.Context) (*oauth2.Token, error) {
	tok, err := a.flow.Run(ctx)
	if err != nil {
		return nil, errors.AuthError(err, "Google authentication failed")
	}
	if err := a.store.Save(tok); err != nil {
		return nil, errors.FileSystemError(err, "failed to save Google token")
	}
	a.logger.Info("saved Google token", "path", a.store.Path)
	return tok, nil
}

func (a *Authenticator) Logout() error {
	return a.store.Delete()
}

// HTTPClient returns an authorized client for the Google API libraries.
func (a *Authenticator) HTTPClient(ctx context.Context, interactive bool) (*http.Client, error) {
	ts, err := a.TokenSource(ctx, interactive)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(context.WithoutCancel(ctx), ts), nil
}

// wrap detaches ctx from cancellation: the source refreshes long after the
// call that created it has returned.
func (a *Authenticator) wrap(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(tok, &persistingSource{
		base:  a.config.TokenSource(context.WithoutCancel(ctx), tok),
		store: a.store,
		last:  tok.AccessToken,
	})
}
