// Package federated implements authcore.IdentityVerifier against Google's
// OAuth2 token introspection and userinfo endpoints.
package federated

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/MrEthical07/authcore"
)

const (
	DefaultTokenInfoURL = "https://www.googleapis.com/oauth2/v1/tokeninfo"
	DefaultUserInfoURL  = "https://www.googleapis.com/oauth2/v1/userinfo"
)

// GoogleConfig configures a Google verifier. Empty URLs use the public
// endpoints; a nil HTTPClient uses a client with a 10s timeout.
type GoogleConfig struct {
	ClientID     string
	TokenInfoURL string
	UserInfoURL  string
	HTTPClient   *http.Client
}

type Google struct {
	clientID     string
	tokenInfoURL string
	userInfoURL  string
	httpClient   *http.Client
}

var _ authcore.IdentityVerifier = (*Google)(nil)

func NewGoogle(cfg GoogleConfig) *Google {
	g := &Google{
		clientID:     cfg.ClientID,
		tokenInfoURL: cfg.TokenInfoURL,
		userInfoURL:  cfg.UserInfoURL,
		httpClient:   cfg.HTTPClient,
	}
	if g.tokenInfoURL == "" {
		g.tokenInfoURL = DefaultTokenInfoURL
	}
	if g.userInfoURL == "" {
		g.userInfoURL = DefaultUserInfoURL
	}
	if g.httpClient == nil {
		g.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return g
}

type tokenInfo struct {
	IssuedTo string `json:"issued_to"`
	Audience string `json:"audience"`
	Error    string `json:"error"`
}

type userInfo struct {
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// Verify checks that accessToken is live and was issued to the configured
// client, then fetches the profile it grants access to.
func (g *Google) Verify(ctx context.Context, accessToken string) (authcore.FederatedProfile, error) {
	info, err := g.tokenInfo(ctx, accessToken)
	if err != nil {
		return authcore.FederatedProfile{}, err
	}

	issuedTo := info.IssuedTo
	if issuedTo == "" {
		issuedTo = info.Audience
	}
	if issuedTo != g.clientID {
		return authcore.FederatedProfile{}, authcore.ErrFederatedAudienceMismatch
	}

	user, err := g.userInfo(ctx, accessToken)
	if err != nil {
		return authcore.FederatedProfile{}, err
	}
	return authcore.FederatedProfile{
		Email:      user.Email,
		GivenName:  user.GivenName,
		FamilyName: user.FamilyName,
	}, nil
}

func (g *Google) tokenInfo(ctx context.Context, accessToken string) (tokenInfo, error) {
	endpoint, err := withQuery(g.tokenInfoURL, url.Values{"access_token": {accessToken}})
	if err != nil {
		return tokenInfo{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return tokenInfo{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return tokenInfo{}, fmt.Errorf("tokeninfo request: %w", err)
	}
	defer resp.Body.Close()

	var info tokenInfo
	decodeErr := json.NewDecoder(resp.Body).Decode(&info)

	switch {
	case info.Error != "", resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized:
		return tokenInfo{}, authcore.ErrFederatedTokenInvalid
	case resp.StatusCode != http.StatusOK:
		return tokenInfo{}, fmt.Errorf("tokeninfo request failed: status %d", resp.StatusCode)
	case decodeErr != nil:
		return tokenInfo{}, fmt.Errorf("tokeninfo decode: %w", decodeErr)
	}
	return info, nil
}

func (g *Google) userInfo(ctx context.Context, accessToken string) (userInfo, error) {
	endpoint, err := withQuery(g.userInfoURL, url.Values{"alt": {"json"}})
	if err != nil {
		return userInfo{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return userInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return userInfo{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return userInfo{}, authcore.ErrFederatedTokenInvalid
	case resp.StatusCode != http.StatusOK:
		return userInfo{}, fmt.Errorf("userinfo request failed: status %d", resp.StatusCode)
	}

	var user userInfo
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return userInfo{}, fmt.Errorf("userinfo decode: %w", err)
	}
	return user, nil
}

func withQuery(raw string, values url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid provider url: %w", err)
	}
	q := u.Query()
	for k, v := range values {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
