package oauth

import (
	"context"
	"encoding/json"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/config"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/logger"
)

const facebookUserInfoURL = "https://graph.facebook.com/me?fields=id,email,first_name,last_name,picture"

type facebookProvider struct {
	cfg         *oauth2.Config
	userInfoURL string
	log         *logger.Logger
}

// NewFacebook builds the Facebook code-exchange provider.
func NewFacebook(cc config.OAuthClient, log *logger.Logger) Provider {
	return &facebookProvider{
		cfg: &oauth2.Config{
			ClientID:     cc.ClientID,
			ClientSecret: cc.ClientSecret,
			RedirectURL:  cc.RedirectURL,
			Endpoint:     facebook.Endpoint,
			Scopes:       []string{"email", "public_profile"},
		},
		userInfoURL: facebookUserInfoURL,
		log:         log,
	}
}

func (p *facebookProvider) Name() string { return "facebook" }

func (p *facebookProvider) Exchange(ctx context.Context, code string) (UserInfo, error) {
	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		p.log.Debug("facebook token exchange failed", "error", err)
		return UserInfo{}, ErrExchangeFailed
	}

	body, err := fetchUserInfo(ctx, p.cfg.Client(ctx, token), p.userInfoURL)
	if err != nil {
		p.log.Debug("facebook userinfo fetch failed", "error", err)
		return UserInfo{}, ErrExchangeFailed
	}
	p.log.Debug("facebook userinfo response", "body", string(body))

	var raw struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Picture   struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(body, &raw); err != nil || raw.ID == "" {
		p.log.Debug("facebook userinfo payload unusable", "error", err)
		return UserInfo{}, ErrExchangeFailed
	}

	return UserInfo{
		ProviderID: raw.ID,
		Email:      raw.Email,
		GivenName:  raw.FirstName,
		Surname:    raw.LastName,
		Picture:    raw.Picture.Data.URL,
	}, nil
}
