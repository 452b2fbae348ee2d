// Package auth creates short-lived GitHub App installation tokens which
// can be injected into clone urls in place of a personal access token.
package auth

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const defaultGithubAPIURL = "https://api.github.com"

// TokenPrincipal is the username github expects alongside an app
// installation token in a clone url
const TokenPrincipal = "x-access-token"

// GithubAppConfig identifies the app installation the token is created for
type GithubAppConfig struct {
	// APIURL is the base url of the github REST API, defaults to
	// the public github.com API
	APIURL string

	// AppID is the application id or the client ID of the github app
	AppID string

	// InstallationID of the app in the organisation
	InstallationID string

	// PrivateKeyPath is the path to the app's RSA private key
	PrivateKeyPath string
}

// InstallationToken is a short-lived access token of an app installation
type InstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GithubAppInstallationToken creates an installation access token by
// signing an app JWT and exchanging it on the installation endpoint.
// The token is scoped to whatever the installation can access, since the
// repository set is only discovered later in the run.
func GithubAppInstallationToken(ctx context.Context, conf GithubAppConfig) (*InstallationToken, error) {
	apiURL := conf.APIURL
	if apiURL == "" {
		apiURL = defaultGithubAPIURL
	}

	privatePEMData, err := os.ReadFile(conf.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(privatePEMData)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, fmt.Errorf("failed to decode PEM block containing private key")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: privateKey}, nil)
	if err != nil {
		return nil, err
	}

	cl := jwt.Claims{
		// GitHub App's ID or client ID
		Issuer: conf.AppID,
		// issued at time, 60 seconds in the past to allow for clock drift
		IssuedAt: jwt.NewNumericDate(time.Now().Add(-60 * time.Second)),
		// JWT expiration time (10 minute maximum)
		Expiry: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
	}

	appJWT, err := jwt.Signed(signer).Claims(cl).Serialize()
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", apiURL, conf.InstallationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		errMessage, err := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub app token response status %d, body:%q  err:%w", resp.StatusCode, errMessage, err)
	}

	token := &InstallationToken{}
	if err := json.NewDecoder(resp.Body).Decode(token); err != nil {
		return nil, err
	}

	return token, nil
}
