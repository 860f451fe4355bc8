package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/util"
)

const (
	sessionCookie   = "jbt_session"
	maxPendingLogin = 256
)

type pendingLogin struct {
	state    string
	verifier string
}

// Flow serves the OAuth2 authorization-code flow with PKCE. The anti-forgery
// state is bound to a session cookie set on /login.
type Flow struct {
	oauth     *oauth2.Config
	revokeURL string
	state     *State
	client    *http.Client
	ttl       time.Duration
	pending   *expirable.LRU[string, pendingLogin]
}

func NewFlow(cfg config.Auth, state *State) *Flow {
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	style := oauth2.AuthStyleInParams
	if cfg.ClientSecret != "" {
		style = oauth2.AuthStyleInHeader
	}
	return &Flow{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: style,
			},
		},
		revokeURL: cfg.RevokeURL,
		state:     state,
		client:    util.NewHTTPClient(15 * time.Second),
		ttl:       ttl,
		pending:   expirable.NewLRU[string, pendingLogin](maxPendingLogin, nil, ttl),
	}
}

// Mount registers /login, /callback and /revoke on r.
func (f *Flow) Mount(r chi.Router) {
	r.Get("/login", f.handleLogin)
	r.Get("/callback", f.handleCallback)
	r.Get("/revoke", f.handleRevoke)
}

// withClient makes oauth2 calls use the flow's HTTP client.
func (f *Flow) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.client)
}

// grant installs tok with a source that refreshes it for as long as the
// process runs.
func (f *Flow) grant(tok *oauth2.Token) {
	ts := f.oauth.TokenSource(f.withClient(context.Background()), tok)
	f.state.Grant(tok, ts)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (f *Flow) handleLogin(w http.ResponseWriter, r *http.Request) {
	if f.state.IsAuthorized() {
		writeText(w, http.StatusOK, "Already authorized. Visit /revoke first to switch accounts.")
		return
	}
	session, err1 := randomToken(24)
	st, err2 := randomToken(24)
	if err := errors.Join(err1, err2); err != nil {
		log.Error().Err(err).Msg("oauth: generate login secrets")
		writeText(w, http.StatusInternalServerError, "internal error")
		return
	}
	verifier := oauth2.GenerateVerifier()
	f.pending.Add(session, pendingLogin{state: st, verifier: verifier})
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(f.ttl / time.Second),
	})
	http.Redirect(w, r, f.oauth.AuthCodeURL(st, oauth2.S256ChallengeOption(verifier)), http.StatusFound)
}

func (f *Flow) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		log.Warn().Str("error", e).Msg("oauth: authorization denied")
		writeText(w, http.StatusBadRequest, "Authorization failed: "+e)
		return
	}
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Missing session. Start again at /login.")
		return
	}
	p, ok := f.pending.Get(c.Value)
	if !ok {
		writeText(w, http.StatusBadRequest, "Login expired. Start again at /login.")
		return
	}
	if subtle.ConstantTimeCompare([]byte(p.state), []byte(q.Get("state"))) != 1 {
		log.Warn().Msg("oauth: state mismatch on callback")
		writeText(w, http.StatusBadRequest, "Stored state does not match.")
		return
	}
	f.pending.Remove(c.Value)
	code := q.Get("code")
	if code == "" {
		writeText(w, http.StatusBadRequest, "Missing authorization code.")
		return
	}

	tok, err := f.oauth.Exchange(f.withClient(r.Context()), code, oauth2.VerifierOption(p.verifier))
	if err != nil {
		log.Error().Err(err).Msg("oauth: token exchange failed")
		writeText(w, http.StatusBadGateway, "Token exchange failed.")
		return
	}
	f.grant(tok)
	log.Info().Msg("oauth: authorized")
	writeText(w, http.StatusOK, "Authorized.")
}

func (f *Flow) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if !f.state.IsAuthorized() {
		writeText(w, http.StatusOK, "Not authorized.")
		return
	}
	tok := f.state.Revoke()
	if tok != nil && tok.AccessToken != "" {
		if err := f.revokeRemote(r.Context(), tok.AccessToken); err != nil {
			log.Warn().Err(err).Msg("oauth: remote revoke failed; local credential cleared")
		}
	}
	log.Info().Msg("oauth: revoked")
	writeText(w, http.StatusOK, "Revoked.")
}

func (f *Flow) revokeRemote(ctx context.Context, token string) error {
	resp, err := f.postForm(ctx, f.revokeURL, url.Values{
		"token":           {token},
		"token_type_hint": {"access_token"},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("revoke endpoint %d", resp.StatusCode)
	}
	return nil
}

// postForm sends form to a provider endpoint outside the oauth2 package's
// scope (token revocation), authenticating the client the same way.
func (f *Flow) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	form.Set("client_id", f.oauth.ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if f.oauth.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(f.oauth.ClientID), url.QueryEscape(f.oauth.ClientSecret))
	}
	return f.client.Do(req)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg+"\n")
}
