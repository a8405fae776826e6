package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
)

type fakeAccounts struct {
	mu       sync.Mutex
	requests map[string][]map[string]any
	idToken  string
	expires  string
	refreshs int
}

func newFakeAccounts(t *testing.T) (*fakeAccounts, *httptest.Server) {
	t.Helper()
	f := &fakeAccounts{requests: map[string][]map[string]any{}, idToken: "tok-1", expires: "3600"}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		method := strings.TrimPrefix(r.URL.Path, "/v1/")
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		f.mu.Lock()
		f.requests[method] = append(f.requests[method], body)
		idToken, expires := f.idToken, f.expires
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "accounts:signInWithPassword":
			switch body["email"] {
			case "missing@acme.com":
				writeAPIError(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
			case "locked@acme.com":
				writeAPIError(w, http.StatusBadRequest, "TOO_MANY_ATTEMPTS_TRY_LATER : Access disabled")
			case "broken@acme.com":
				writeAPIError(w, http.StatusServiceUnavailable, "")
			default:
				if body["password"] != "pw" {
					writeAPIError(w, http.StatusBadRequest, "INVALID_PASSWORD")
					return
				}
				_ = json.NewEncoder(w).Encode(map[string]any{
					"localId": "uid-ann", "email": body["email"], "displayName": "Ann",
					"idToken": idToken, "refreshToken": "refresh-1", "expiresIn": expires,
				})
			}
		case "accounts:signUp":
			if body["email"] == "taken@acme.com" {
				writeAPIError(w, http.StatusBadRequest, "EMAIL_EXISTS")
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"localId": "uid-new", "email": body["email"], "idToken": idToken, "refreshToken": "refresh-1", "expiresIn": expires,
			})
		case "accounts:update":
			_ = json.NewEncoder(w).Encode(map[string]any{"localId": "uid-ann", "email": body["email"], "displayName": body["displayName"]})
		case "accounts:lookup":
			_ = json.NewEncoder(w).Encode(map[string]any{"users": []map[string]any{
				{"localId": "uid-ann", "createdAt": "1704067200000", "lastLoginAt": "1706745600000"},
			}})
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		f.mu.Lock()
		f.refreshs++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-refreshed", "refresh_token": "refresh-2", "expires_in": 3600, "token_type": "Bearer",
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

func (f *fakeAccounts) last(method string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := f.requests[method]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

func (f *fakeAccounts) setToken(idToken, expires string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idToken, f.expires = idToken, expires
}

func (f *fakeAccounts) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshs
}

func newTestProvider(t *testing.T, srv *httptest.Server, verifier *gooidc.IDTokenVerifier) *Provider {
	t.Helper()
	p, err := NewProvider(Config{
		BaseURL:    srv.URL + "/v1",
		TokenURL:   srv.URL + "/token",
		APIKey:     "test-key",
		Verifier:   verifier,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return p
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		errMsg string
	}{
		{"missing base URL", Config{APIKey: "k", TokenURL: "http://t"}, "base URL is required"},
		{"missing API key", Config{BaseURL: "http://b", TokenURL: "http://t"}, "API key is required"},
		{"missing token URL", Config{BaseURL: "http://b", APIKey: "k"}, "token URL is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_SignIn(t *testing.T) {
	_, srv := newFakeAccounts(t)
	p := newTestProvider(t, srv, nil)

	sess, err := p.SignIn(context.Background(), "ann@acme.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "uid-ann", sess.UserID)
	assert.Equal(t, "ann@acme.com", sess.Email)
	assert.Equal(t, "Ann", sess.DisplayName)
}

func TestProvider_SignIn_ErrorKinds(t *testing.T) {
	_, srv := newFakeAccounts(t)
	p := newTestProvider(t, srv, nil)

	tests := []struct {
		email, password string
		want            error
	}{
		{"missing@acme.com", "pw", domainauth.ErrUserNotFound},
		{"ann@acme.com", "nope", domainauth.ErrInvalidCredentials},
		{"locked@acme.com", "pw", domainauth.ErrNetwork},
		{"broken@acme.com", "pw", domainauth.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			_, err := p.SignIn(context.Background(), tt.email, tt.password)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := p.SignUp(context.Background(), "taken@acme.com", "pw")
	assert.Equal(t, domainauth.KindUnknown, domainauth.KindOf(err))
}

func TestProvider_SignIn_Unreachable(t *testing.T) {
	_, srv := newFakeAccounts(t)
	p := newTestProvider(t, srv, nil)
	srv.Close()

	_, err := p.SignIn(context.Background(), "ann@acme.com", "pw")
	assert.ErrorIs(t, err, domainauth.ErrNetwork)
}

func TestProvider_UpdatesRequireSession(t *testing.T) {
	_, srv := newFakeAccounts(t)
	p := newTestProvider(t, srv, nil)

	assert.ErrorIs(t, p.UpdateEmail(context.Background(), "x@acme.com"), domainauth.ErrNoProviderSession)
	_, err := p.Metadata(context.Background())
	assert.ErrorIs(t, err, domainauth.ErrNoProviderSession)
}

func TestProvider_UpdateAndMetadata(t *testing.T) {
	fake, srv := newFakeAccounts(t)
	p := newTestProvider(t, srv, nil)

	_, err := p.SignIn(context.Background(), "ann@acme.com", "pw")
	require.NoError(t, err)

	require.NoError(t, p.UpdateEmail(context.Background(), "ann2@acme.com"))
	req := fake.last("accounts:update")
	assert.Equal(t, "tok-1", req["idToken"])
	assert.Equal(t, "ann2@acme.com", req["email"])

	require.NoError(t, p.UpdateDisplayName(context.Background(), "Annie"))
	assert.Equal(t, "Annie", fake.last("accounts:update")["displayName"])

	md, err := p.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), md.CreatedAt)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), md.LastSignInAt)

	require.NoError(t, p.SignOut(context.Background()))
	assert.ErrorIs(t, p.UpdateDisplayName(context.Background(), "x"), domainauth.ErrNoProviderSession)
}

func TestProvider_RefreshesExpiredToken(t *testing.T) {
	fake, srv := newFakeAccounts(t)
	fake.setToken("tok-1", "1")
	p := newTestProvider(t, srv, nil)

	_, err := p.SignIn(context.Background(), "ann@acme.com", "pw")
	require.NoError(t, err)

	require.NoError(t, p.UpdateDisplayName(context.Background(), "Ann"))
	assert.Equal(t, "tok-refreshed", fake.last("accounts:update")["idToken"])
	assert.Equal(t, 1, fake.refreshCount())
}

func TestProvider_VerifiesIDToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	verifier := gooidc.NewVerifier("https://issuer.test", &gooidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}},
		&gooidc.Config{ClientID: "opsdesk"})

	fake, srv := newFakeAccounts(t)
	p := newTestProvider(t, srv, verifier)

	fake.setToken(signJWT(t, key, map[string]any{
		"iss": "https://issuer.test", "aud": "opsdesk", "sub": "uid-ann",
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
	}), "3600")
	sess, err := p.SignIn(context.Background(), "ann@acme.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "uid-ann", sess.UserID)

	fake.setToken(signJWT(t, key, map[string]any{
		"iss": "https://issuer.test", "aud": "someone-else", "sub": "uid-ann",
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
	}), "3600")
	_, err = p.SignIn(context.Background(), "ann@acme.com", "pw")
	assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
}

func signJWT(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	signingInput := enc(map[string]string{"alg": "RS256", "typ": "JWT"}) + "." + enc(claims)
	sum := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, sum[:])
	require.NoError(t, err)
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}
