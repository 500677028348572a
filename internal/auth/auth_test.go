package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/rohankatakam/reqtaker/internal/errors"
)

func TestParseClientConfig(t *testing.T) {
	t.Run("installed", func(t *testing.T) {
		cfg, err := ParseClientConfig([]byte(`{"installed":{"client_id":"cid","client_secret":"sec","redirect_uris":["http://localhost"]}}`))
		require.NoError(t, err)
		assert.Equal(t, "cid", cfg.ClientID)
		assert.Equal(t, Scopes, cfg.Scopes)
		assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.Endpoint.TokenURL)
	})

	t.Run("web is normalized", func(t *testing.T) {
		cfg, err := ParseClientConfig([]byte(`{"web":{"client_id":"cid","client_secret":"sec","redirect_uris":["https://example.com/cb"]}}`))
		require.NoError(t, err)
		assert.Equal(t, "http://localhost", cfg.RedirectURL)
	})

	t.Run("errors", func(t *testing.T) {
		cases := map[string]string{
			`not json`:                            "Invalid JSON",
			`{"other":{}}`:                        "Expected 'installed' or 'web'",
			`{"installed":{"client_secret":"x"}}`: "client_id",
			`{"installed":{"client_id":"x"}}`:     "client_secret",
		}
		for input, want := range cases {
			_, err := ParseClientConfig([]byte(input))
			require.Error(t, err, input)
			assert.Contains(t, err.Error(), want)
			assert.Equal(t, errors.ErrorTypeConfig, errors.GetType(err))
		}
	})
}

func TestLoadClientConfig_MissingFile(t *testing.T) {
	_, err := LoadClientConfig(filepath.Join(t.TempDir(), "credentials.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Credentials file not found")
	assert.True(t, errors.IsFatal(err))
}

func TestTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := NewTokenStore(path)

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)

	expiry := time.Now().Add(time.Hour).Round(time.Second)
	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer", Expiry: expiry}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	tok, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.True(t, tok.Expiry.Equal(expiry))

	require.NoError(t, store.Delete())
	require.NoError(t, store.Delete())
}

func TestTokenStore_AuthorizedUserFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"token":"ya29","refresh_token":"rt","client_id":"cid"}`), 0600))

	tok, err := NewTokenStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "ya29", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
}

func TestTokenStore_CorruptedFileRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0600))

	tok, err := NewTokenStore(path).Load()
	require.NoError(t, err)
	assert.Nil(t, tok)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func tokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"token_type":    "Bearer",
			"refresh_token": "rt",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "cid",
		ClientSecret: "sec",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: tokenURL},
		Scopes:       Scopes,
	}
}

func TestAuthenticator_RefreshesExpiredToken(t *testing.T) {
	srv := tokenServer(t, "fresh")
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "stale", RefreshToken: "rt", Expiry: time.Now().Add(-time.Hour)}))

	a := newAuthenticator(testConfig(srv.URL), store, &LocalServerFlow{})
	ts, err := a.TokenSource(context.Background(), false)
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", saved.AccessToken)
}

func TestAuthenticator_RefreshOutlivesCallerContext(t *testing.T) {
	srv := tokenServer(t, "later")
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"))
	// valid now, inside oauth2's 10s expiry window shortly after
	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "current", RefreshToken: "rt", Expiry: time.Now().Add(10*time.Second + 300*time.Millisecond)}))

	a := newAuthenticator(testConfig(srv.URL), store, &LocalServerFlow{})
	ctx, cancel := context.WithCancel(context.Background())
	ts, err := a.TokenSource(ctx, false)
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "current", tok.AccessToken)

	cancel()
	time.Sleep(500 * time.Millisecond)

	tok, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "later", tok.AccessToken)
}

func TestAuthenticator_NonInteractiveWithoutToken(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"))
	a := newAuthenticator(testConfig("http://127.0.0.1:1"), store, &LocalServerFlow{})

	_, err := a.TokenSource(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeAuth, errors.GetType(err))
	assert.Contains(t, err.Error(), "reqtaker login")
}

func TestLocalServerFlow(t *testing.T) {
	srv := tokenServer(t, "from-flow")
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"))

	flow := &LocalServerFlow{
		Config:  testConfig(srv.URL),
		Timeout: 10 * time.Second,
		OpenBrowser: func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			q := u.Query()
			assert.Equal(t, "S256", q.Get("code_challenge_method"))
			assert.Equal(t, "offline", q.Get("access_type"))

			cb := q.Get("redirect_uri") + "?code=abc&state=" + url.QueryEscape(q.Get("state"))
			go func() {
				resp, err := http.Get(cb)
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}

	a := newAuthenticator(flow.Config, store, flow)
	ts, err := a.TokenSource(context.Background(), true)
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "from-flow", tok.AccessToken)

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-flow", saved.AccessToken)
}

func TestLocalServerFlow_StateMismatch(t *testing.T) {
	flow := &LocalServerFlow{
		Config:  testConfig("http://127.0.0.1:1"),
		Timeout: 10 * time.Second,
		OpenBrowser: func(authURL string) error {
			u, _ := url.Parse(authURL)
			go func() {
				resp, err := http.Get(u.Query().Get("redirect_uri") + "?code=abc&state=wrong")
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}

	_, err := flow.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
}
