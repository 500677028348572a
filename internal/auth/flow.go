package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
)

const callbackPage = `<html><body style="font-family:sans-serif">
<h2>%s</h2><p>You can close this window and return to the terminal.</p></body></html>`

// LocalServerFlow runs the installed-app OAuth flow: it listens on a
// loopback port, opens the consent page in a browser and exchanges the
// returned code (with PKCE) for a token.
type LocalServerFlow struct {
	Config      *oauth2.Config
	Out         io.Writer
	Timeout     time.Duration
	OpenBrowser func(url string) error
}

type callbackResult struct {
	code string
	err  error
}

func (f *LocalServerFlow) Run(ctx context.Context) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start OAuth callback listener: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	cfg := *f.Config
	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/", port)

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			res.err = errors.New("OAuth state mismatch")
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = errors.New("authorization response did not include a code")
		default:
			res.code = q.Get("code")
		}

		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, callbackPage, "Authentication failed")
		} else {
			fmt.Fprintf(w, callbackPage, "Authentication complete")
		}
		select {
		case results <- res:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go server.Serve(listener)
	defer server.Close()

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(verifier),
	)

	out := f.Out
	if out == nil {
		out = io.Discard
	}
	open := f.OpenBrowser
	if open == nil {
		open = browser.OpenURL
	}

	fmt.Fprintf(out, "🔐 Opening browser for Google authentication...\n\n")
	fmt.Fprintf(out, "Visit: %s\n\n", authURL)
	if err := open(authURL); err != nil {
		fmt.Fprintf(out, "⚠️  Could not open browser automatically. Please visit the URL above.\n\n")
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var res callbackResult
	select {
	case res = <-results:
	case <-waitCtx.Done():
		return nil, fmt.Errorf("timed out waiting for Google authorization: %w", waitCtx.Err())
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := cfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}
