package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"
)

// GoogleIssuer is the OpenID Connect issuer for Google accounts.
const GoogleIssuer = "https://accounts.google.com"

var (
	// ErrInvalidIdentityToken indicates an id token that failed verification or carried no usable claims.
	ErrInvalidIdentityToken = errors.New("invalid identity token")
	// ErrIdentityEmailUnverified indicates the identity provider has not verified the account email.
	ErrIdentityEmailUnverified = errors.New("identity email is not verified")
)

// Identity is the verified subset of an external id token.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// GoogleVerifier verifies Google id tokens for a single OAuth client id. Provider discovery
// runs on first use and is retried on later calls if it fails.
type GoogleVerifier struct {
	issuer     string
	clientID   string
	httpClient *http.Client

	mu    sync.Mutex
	party rp.RelyingParty
}

// NewGoogleVerifier constructs a verifier. httpClient may be nil.
func NewGoogleVerifier(clientID string, httpClient *http.Client) *GoogleVerifier {
	return &GoogleVerifier{issuer: GoogleIssuer, clientID: clientID, httpClient: httpClient}
}

// Verify checks the signature, issuer, audience and expiry of idToken and extracts the identity.
func (g *GoogleVerifier) Verify(ctx context.Context, idToken string) (Identity, error) {
	if strings.TrimSpace(idToken) == "" {
		return Identity{}, ErrInvalidIdentityToken
	}

	party, err := g.relyingParty(ctx)
	if err != nil {
		return Identity{}, err
	}

	claims, err := rp.VerifyIDToken[*oidc.IDTokenClaims](ctx, idToken, party.IDTokenVerifier())
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentityToken, err)
	}
	return identityFromClaims(claims)
}

func (g *GoogleVerifier) relyingParty(ctx context.Context) (rp.RelyingParty, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.party != nil {
		return g.party, nil
	}

	var options []rp.Option
	if g.httpClient != nil {
		options = append(options, rp.WithHTTPClient(g.httpClient))
	}

	party, err := rp.NewRelyingPartyOIDC(ctx, g.issuer, g.clientID, "", "", []string{oidc.ScopeOpenID, oidc.ScopeEmail, oidc.ScopeProfile}, options...)
	if err != nil {
		return nil, fmt.Errorf("discover identity provider: %w", err)
	}
	g.party = party
	return party, nil
}

func identityFromClaims(claims *oidc.IDTokenClaims) (Identity, error) {
	if claims == nil || claims.Subject == "" || strings.TrimSpace(claims.Email) == "" {
		return Identity{}, ErrInvalidIdentityToken
	}
	if !bool(claims.EmailVerified) {
		return Identity{}, ErrIdentityEmailUnverified
	}
	return Identity{
		Subject: claims.Subject,
		Email:   NormalizeEmail(claims.Email),
		Name:    strings.TrimSpace(claims.Name),
		Picture: claims.Picture,
	}, nil
}
