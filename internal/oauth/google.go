package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/config"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/logger"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type googleProvider struct {
	cfg         *oauth2.Config
	userInfoURL string
	log         *logger.Logger
}

// NewGoogle builds the Google code-exchange provider.
func NewGoogle(cc config.OAuthClient, log *logger.Logger) Provider {
	return &googleProvider{
		cfg: &oauth2.Config{
			ClientID:     cc.ClientID,
			ClientSecret: cc.ClientSecret,
			RedirectURL:  cc.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
		log:         log,
	}
}

func (p *googleProvider) Name() string { return "google" }

func (p *googleProvider) Exchange(ctx context.Context, code string) (UserInfo, error) {
	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		p.log.Debug("google token exchange failed", "error", err)
		return UserInfo{}, ErrExchangeFailed
	}

	body, err := fetchUserInfo(ctx, p.cfg.Client(ctx, token), p.userInfoURL)
	if err != nil {
		p.log.Debug("google userinfo fetch failed", "error", err)
		return UserInfo{}, ErrExchangeFailed
	}
	p.log.Debug("google userinfo response", "body", string(body))

	var raw struct {
		ID         string `json:"id"`
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Picture    string `json:"picture"`
	}
	if err := json.Unmarshal(body, &raw); err != nil || raw.ID == "" {
		p.log.Debug("google userinfo payload unusable", "error", err)
		return UserInfo{}, ErrExchangeFailed
	}

	return UserInfo{
		ProviderID: raw.ID,
		Email:      raw.Email,
		GivenName:  raw.GivenName,
		Surname:    raw.FamilyName,
		Picture:    raw.Picture,
	}, nil
}

func fetchUserInfo(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned %d", resp.StatusCode)
	}
	return body, nil
}
