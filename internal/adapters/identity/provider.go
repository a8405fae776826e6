// Package identity implements ports.CredentialProvider against an
// identity-toolkit style REST service: email/password accounts, ID tokens
// verified with go-oidc and refresh tokens exchanged through oauth2.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
	"golang.org/x/oauth2"
)

var _ ports.CredentialProvider = (*Provider)(nil)

// Config holds configuration for the identity provider.
type Config struct {
	// BaseURL is the accounts API root, e.g. https://identitytoolkit.googleapis.com/v1.
	BaseURL string
	// TokenURL is the refresh-token endpoint.
	TokenURL string
	APIKey   string
	// Issuer and Audience enable ID token verification when JWKSURL is set.
	Issuer   string
	Audience string
	JWKSURL  string
	// Verifier overrides the verifier built from Issuer/Audience/JWKSURL.
	Verifier   *gooidc.IDTokenVerifier
	HTTPClient *http.Client // Optional, defaults to a client with a 15s timeout
}

// Provider signs users in with email and password and holds the resulting
// provider session for subsequent account updates.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	oauth      *oauth2.Config
	verifier   *gooidc.IDTokenVerifier

	mu      sync.Mutex
	current *providerSession
}

type providerSession struct {
	ports.ProviderSession
	tokens oauth2.TokenSource
}

// NewProvider validates cfg and builds a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.TokenURL == "" {
		return nil, errors.New("token URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	tokenURL, err := withKey(cfg.TokenURL, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("token URL: %w", err)
	}

	p := &Provider{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		oauth: &oauth2.Config{
			Endpoint: oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		},
		verifier: cfg.Verifier,
	}
	if p.verifier == nil && cfg.JWKSURL != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		keys := gooidc.NewRemoteKeySet(ctx, cfg.JWKSURL)
		p.verifier = gooidc.NewVerifier(cfg.Issuer, keys, &gooidc.Config{ClientID: cfg.Audience})
	}
	return p, nil
}

func withKey(raw, key string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// accountResponse is the common shape of signIn/signUp/update responses.
type accountResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (ports.ProviderSession, error) {
	return p.authenticate(ctx, "accounts:signInWithPassword", "sign in", email, password)
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (ports.ProviderSession, error) {
	return p.authenticate(ctx, "accounts:signUp", "sign up", email, password)
}

func (p *Provider) authenticate(ctx context.Context, method, op, email, password string) (ports.ProviderSession, error) {
	var resp accountResponse
	err := p.call(ctx, op, method, map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return ports.ProviderSession{}, err
	}

	uid, err := p.subject(ctx, op, resp)
	if err != nil {
		return ports.ProviderSession{}, err
	}

	sess := &providerSession{
		ProviderSession: ports.ProviderSession{UserID: uid, Email: domainauth.NormalizeEmail(resp.Email), DisplayName: resp.DisplayName},
		tokens:          p.tokenSource(ctx, resp),
	}
	p.mu.Lock()
	p.current = sess
	p.mu.Unlock()
	return sess.ProviderSession, nil
}

// subject returns the verified user id. Without a verifier the localId is trusted.
func (p *Provider) subject(ctx context.Context, op string, resp accountResponse) (string, error) {
	if p.verifier == nil {
		if resp.LocalID == "" {
			return "", domainauth.Errorf(domainauth.KindUnknown, op, "response carries no user id")
		}
		return resp.LocalID, nil
	}
	tok, err := p.verifier.Verify(ctx, resp.IDToken)
	if err != nil {
		return "", domainauth.Wrap(domainauth.KindInvalidCredentials, op, fmt.Errorf("verify id token: %w", err))
	}
	if resp.LocalID != "" && tok.Subject != resp.LocalID {
		return "", domainauth.Errorf(domainauth.KindInvalidCredentials, op, "id token subject does not match account")
	}
	return tok.Subject, nil
}

func (p *Provider) tokenSource(ctx context.Context, resp accountResponse) oauth2.TokenSource {
	tok := &oauth2.Token{AccessToken: resp.IDToken, RefreshToken: resp.RefreshToken, TokenType: "Bearer"}
	if secs, err := strconv.Atoi(resp.ExpiresIn); err == nil && secs > 0 {
		tok.Expiry = time.Now().Add(time.Duration(secs) * time.Second)
	}
	ctx = context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, p.httpClient)
	return p.oauth.TokenSource(ctx, tok)
}

// SignOut forgets the local provider session. The service keeps no server-side session.
func (p *Provider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	return nil
}

func (p *Provider) UpdateEmail(ctx context.Context, email string) error {
	return p.update(ctx, "update email", map[string]any{"email": email})
}

func (p *Provider) UpdateDisplayName(ctx context.Context, name string) error {
	return p.update(ctx, "update display name", map[string]any{"displayName": name})
}

func (p *Provider) update(ctx context.Context, op string, fields map[string]any) error {
	sess, idToken, err := p.session(op)
	if err != nil {
		return err
	}
	fields["idToken"] = idToken
	fields["returnSecureToken"] = true

	var resp accountResponse
	if err = p.call(ctx, op, "accounts:update", fields, &resp); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != sess {
		return nil
	}
	if resp.Email != "" {
		sess.Email = domainauth.NormalizeEmail(resp.Email)
	}
	if resp.DisplayName != "" {
		sess.DisplayName = resp.DisplayName
	}
	if resp.IDToken != "" {
		sess.tokens = p.tokenSource(ctx, resp)
	}
	return nil
}

type lookupResponse struct {
	Users []struct {
		LocalID     string `json:"localId"`
		CreatedAt   string `json:"createdAt"`
		LastLoginAt string `json:"lastLoginAt"`
	} `json:"users"`
}

func (p *Provider) Metadata(ctx context.Context) (domainauth.Metadata, error) {
	_, idToken, err := p.session("metadata")
	if err != nil {
		return domainauth.Metadata{}, err
	}
	var resp lookupResponse
	if err = p.call(ctx, "metadata", "accounts:lookup", map[string]any{"idToken": idToken}, &resp); err != nil {
		return domainauth.Metadata{}, err
	}
	if len(resp.Users) == 0 {
		return domainauth.Metadata{}, domainauth.Errorf(domainauth.KindUserNotFound, "metadata", "account not found")
	}
	u := resp.Users[0]
	return domainauth.Metadata{CreatedAt: millis(u.CreatedAt), LastSignInAt: millis(u.LastLoginAt)}, nil
}

func millis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// session returns the current session and a fresh ID token, refreshing it when expired.
func (p *Provider) session(op string) (*providerSession, string, error) {
	p.mu.Lock()
	sess := p.current
	p.mu.Unlock()
	if sess == nil {
		return nil, "", domainauth.ErrNoProviderSession
	}
	tok, err := sess.tokens.Token()
	if err != nil {
		return nil, "", domainauth.Wrap(domainauth.KindNetwork, op, fmt.Errorf("refresh id token: %w", err))
	}
	return sess, tok.AccessToken, nil
}

// call POSTs body to the accounts API and decodes a JSON response into out.
func (p *Provider) call(ctx context.Context, op, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domainauth.Wrap(domainauth.KindUnknown, op, err)
	}
	endpoint, err := withKey(p.baseURL+"/"+method, p.apiKey)
	if err != nil {
		return domainauth.Wrap(domainauth.KindUnknown, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domainauth.Wrap(domainauth.KindUnknown, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domainauth.Wrap(domainauth.KindNetwork, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domainauth.Wrap(domainauth.KindNetwork, op, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(op, resp.StatusCode, data)
	}
	if err = json.Unmarshal(data, out); err != nil {
		return domainauth.Wrap(domainauth.KindUnknown, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// apiError maps the service's error codes onto the auth error taxonomy.
func apiError(op string, status int, data []byte) error {
	var body apiErrorBody
	_ = json.Unmarshal(data, &body)
	code := body.Error.Message
	// Messages may carry a detail suffix: "WEAK_PASSWORD : Password should be ..."
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}

	kind := domainauth.KindUnknown
	switch code {
	case "EMAIL_NOT_FOUND", "USER_NOT_FOUND":
		kind = domainauth.KindUserNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED", "INVALID_ID_TOKEN", "TOKEN_EXPIRED":
		kind = domainauth.KindInvalidCredentials
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		kind = domainauth.KindNetwork
	default:
		if status >= http.StatusInternalServerError {
			kind = domainauth.KindNetwork
		}
	}
	if code == "" {
		code = http.StatusText(status)
	}
	return domainauth.Errorf(kind, op, "identity service: %s (status %d)", code, status)
}
