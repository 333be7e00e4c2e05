// Package auth implements the site's optional GitHub OAuth2 login, the
// `auth { salt ... github { clientId clientSecret } }` block: a standard
// Authorization Code flow over golang.org/x/oauth2, with an HMAC-signed
// state parameter (keyed on the site's salt) standing in for server-side
// state storage, and opaque session cookies backed by internal/sessionstore.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/williamcotton/webdsl/internal/ast"
	"github.com/williamcotton/webdsl/internal/sessionstore"
)

// SessionCookieName is the cookie the dispatcher and this package both
// read/write to resolve the current session. Kept as its own constant
// (rather than importing internal/httpserver) to avoid a dependency from
// the auth package back onto the transport layer.
const SessionCookieName = "webdsl_session"

// stateTTL bounds how long an authorization request can sit at GitHub's
// consent screen before the state HMAC is considered stale.
const stateTTL = 10 * time.Minute

// User is the subset of a GitHub user resource the session stores.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Authenticator wires a site's Auth config to an oauth2.Config and the
// shared session store. A nil Authenticator (no `auth` block in the site)
// means login/callback/logout routes are simply not registered.
type Authenticator struct {
	config    oauth2.Config
	salt      []byte
	sessions  *sessionstore.Store
	loginPath string
	callback  string
}

// ErrNoAuthConfigured is returned by New when the site has no auth block.
var ErrNoAuthConfigured = errors.New("auth: site has no auth configuration")

// New builds an Authenticator from the site's resolved Auth config. baseURL
// is the site's own externally-reachable origin, used to build the OAuth
// redirect URL (e.g. "https://example.com").
func New(a *ast.Auth, sessions *sessionstore.Store, baseURL string) (*Authenticator, error) {
	if a == nil || a.Github == nil {
		return nil, ErrNoAuthConfigured
	}
	clientID, ok := a.Github.ClientID.ResolveString()
	if !ok || clientID == "" {
		return nil, fmt.Errorf("auth: github clientId not resolvable")
	}
	clientSecret, ok := a.Github.ClientSecret.ResolveString()
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("auth: github clientSecret not resolvable")
	}
	salt, ok := a.Salt.ResolveString()
	if !ok || salt == "" {
		return nil, fmt.Errorf("auth: salt not resolvable")
	}

	return &Authenticator{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  baseURL + "/auth/github/callback",
			Scopes:       []string{"user:email"},
		},
		salt:      []byte(salt),
		sessions:  sessions,
		loginPath: "/auth/github",
		callback:  "/auth/github/callback",
	}, nil
}

// LoginPath and CallbackPath report the routes this Authenticator answers,
// so the internal/httpserver dispatcher can match them without hardcoding
// the paths twice.
func (a *Authenticator) LoginPath() string    { return a.loginPath }
func (a *Authenticator) CallbackPath() string { return a.callback }

// signState HMACs the issuing timestamp with the site's salt, so the
// callback can verify the state parameter without server-side storage.
func (a *Authenticator) signState() string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, a.salt)
	mac.Write([]byte(ts))
	sig := hex.EncodeToString(mac.Sum(nil))
	return ts + "." + sig
}

func (a *Authenticator) verifyState(state string) bool {
	var ts string
	var sig string
	for i := len(state) - 1; i >= 0; i-- {
		if state[i] == '.' {
			ts, sig = state[:i], state[i+1:]
			break
		}
	}
	if ts == "" || sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, a.salt)
	mac.Write([]byte(ts))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return false
	}
	var unixSec int64
	if _, err := fmt.Sscanf(ts, "%d", &unixSec); err != nil {
		return false
	}
	return time.Since(time.Unix(unixSec, 0)) < stateTTL
}

// LoginHandler redirects the browser to GitHub's consent screen.
func (a *Authenticator) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state := a.signState()
	http.Redirect(w, r, a.config.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
}

// CallbackHandler completes the Authorization Code exchange, fetches the
// GitHub user, creates a session, and sets the session cookie before
// redirecting home.
func (a *Authenticator) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errStr := q.Get("error"); errStr != "" {
		http.Error(w, "github auth failed: "+errStr, http.StatusBadRequest)
		return
	}
	state := q.Get("state")
	if !a.verifyState(state) {
		http.Error(w, "invalid or expired state", http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	token, err := a.config.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}

	user, err := a.fetchUser(r.Context(), token)
	if err != nil {
		http.Error(w, "fetching github user failed", http.StatusBadGateway)
		return
	}

	sessionID, err := sessionstore.NewSessionID()
	if err != nil {
		http.Error(w, "session creation failed", http.StatusInternalServerError)
		return
	}
	userDoc, err := sessionstore.MarshalUser(user)
	if err != nil {
		http.Error(w, "session creation failed", http.StatusInternalServerError)
		return
	}
	if err := a.sessions.Create(r.Context(), sessionID, map[string]any{"user": userDoc}); err != nil {
		http.Error(w, "session creation failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionstore.DefaultTTL.Seconds()),
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// LogoutHandler destroys the current session and clears its cookie.
func (a *Authenticator) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		_ = a.sessions.Destroy(r.Context(), c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *Authenticator) fetchUser(ctx context.Context, token *oauth2.Token) (*User, error) {
	client := a.config.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/user", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github user lookup: %s: %s", resp.Status, string(body))
	}
	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}
