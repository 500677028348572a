package auth

import (
	"encoding/json"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/rohankatakam/reqtaker/internal/errors"
)

// Scopes are the read-only Google scopes needed to list folders and
// export Docs, Sheets and Slides.
var Scopes = []string{
	"https://www.googleapis.com/auth/drive.readonly",
	"https://www.googleapis.com/auth/documents.readonly",
	"https://www.googleapis.com/auth/spreadsheets.readonly",
	"https://www.googleapis.com/auth/presentations.readonly",
}

type clientSecret struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	ProjectID    string   `json:"project_id,omitempty"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
	RedirectURIs []string `json:"redirect_uris"`
}

type credentialsFile struct {
	Installed *clientSecret `json:"installed,omitempty"`
	Web       *clientSecret `json:"web,omitempty"`
}

// LoadClientConfig reads a Google OAuth client file (Desktop "installed"
// or "web" flavour) and returns an oauth2 config for the read-only scopes.
// Web clients are normalized into an installed client using a localhost redirect.
func LoadClientConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.ConfigErrorf("Credentials file not found: %s\n"+
			"Please create credentials.json using credentials.json.example as template", path)
	}
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "failed to read credentials file %s", path)
	}
	return ParseClientConfig(data)
}

// ParseClientConfig is LoadClientConfig for in-memory JSON.
func ParseClientConfig(data []byte) (*oauth2.Config, error) {
	var file credentialsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.ConfigErrorf("Invalid JSON in credentials file: %v", err)
	}

	secret := file.Installed
	if secret == nil {
		secret = file.Web
	}
	if secret == nil {
		return nil, errors.ConfigError("Invalid credentials format. Expected 'installed' or 'web' configuration.")
	}
	if secret.ClientID == "" {
		return nil, errors.ConfigError("Missing required field in credentials: client_id")
	}
	if secret.ClientSecret == "" {
		return nil, errors.ConfigError("Missing required field in credentials: client_secret")
	}

	normalized := *secret
	if normalized.AuthURI == "" {
		normalized.AuthURI = google.Endpoint.AuthURL
	}
	if normalized.TokenURI == "" {
		normalized.TokenURI = google.Endpoint.TokenURL
	}
	if file.Installed == nil || len(normalized.RedirectURIs) == 0 {
		normalized.RedirectURIs = []string{"http://localhost"}
	}

	raw, err := json.Marshal(credentialsFile{Installed: &normalized})
	if err != nil {
		return nil, errors.InternalErrorf("failed to normalize credentials: %v", err)
	}
	cfg, err := google.ConfigFromJSON(raw, Scopes...)
	if err != nil {
		return nil, errors.ConfigErrorf("Invalid credentials: %v", err)
	}
	return cfg, nil
}
