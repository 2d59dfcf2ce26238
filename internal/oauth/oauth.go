// Package oauth exchanges authorization codes against the supported
// identity providers and normalizes their user-info payloads.
package oauth

import (
	"context"
	"errors"
)

// ErrExchangeFailed is what callers see when any step of the exchange
// goes wrong. The provider's raw answer is logged at debug level only.
var ErrExchangeFailed = errors.New("provider exchange failed")

// UserInfo is the provider-independent identity shape handed to the
// authentication flow.
type UserInfo struct {
	ProviderID string
	Email      string
	GivenName  string
	Surname    string
	Picture    string
}

// Provider turns an authorization code into a normalized identity.
type Provider interface {
	Name() string
	Exchange(ctx context.Context, code string) (UserInfo, error)
}
