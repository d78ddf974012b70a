package clients

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ajitpratap0/bioetl/pkg/config"
)

// tokenSource returns the token source for the client, or nil when the API
// is anonymous. Client credentials win over a static bearer token.
func tokenSource(ctx context.Context, bearer string, oc config.OAuth2Config) oauth2.TokenSource {
	if oc.Enabled() {
		cc := &clientcredentials.Config{
			ClientID:     oc.ClientID,
			ClientSecret: oc.ClientSecret,
			TokenURL:     oc.TokenURL,
			Scopes:       oc.Scopes,
		}
		return cc.TokenSource(ctx)
	}
	if bearer != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"})
	}
	return nil
}

// withAuth wraps base with an Authorization header transport when ts is set.
func withAuth(base http.RoundTripper, ts oauth2.TokenSource) http.RoundTripper {
	if ts == nil {
		return base
	}
	return &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, ts), Base: base}
}
