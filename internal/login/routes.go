package login

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/airmash-refugees/airmash-services/internal/ledger"
	"github.com/airmash-refugees/airmash-services/internal/oauth1"
	"github.com/airmash-refugees/airmash-services/internal/provider"
	"github.com/airmash-refugees/airmash-services/internal/token"
)

const (
	loginPath    = "/login"
	callbackPath = "/login/callback"
	keyPath      = "/key"
)

var (
	originShapePattern = regexp.MustCompile(`^https?://`)
	loopbackPattern    = regexp.MustCompile(`^http://127\.0\.0\.1:[0-9]{1,5}/?$`)
	noncePattern       = regexp.MustCompile(`(?i)^[0-9a-f]{32}$`)
)

// Orchestrator wires the login flow's collaborators together. All fields are
// set once at construction; per-login state lives in the session store.
type Orchestrator struct {
	config    ServerConfig
	providers *provider.Registry
	sessions  SessionStore
	ledger    ledger.Ledger
	signer    *token.Signer
	logger    *zap.Logger
	metrics   *CounterMetrics
	now       func() time.Time
}

// NewOrchestrator constructs the login orchestrator.
func NewOrchestrator(configuration ServerConfig, providers *provider.Registry, sessions SessionStore, identityLedger ledger.Ledger, signer *token.Signer, logger *zap.Logger, metrics *CounterMetrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	return &Orchestrator{
		config:    configuration,
		providers: providers,
		sessions:  sessions,
		ledger:    identityLedger,
		signer:    signer,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// MountLoginRoutes registers /login, /login/callback, /key, and the fallback
// redirect on the router.
func MountLoginRoutes(router *gin.Engine, orchestrator *Orchestrator) {
	router.GET(loginPath, orchestrator.handleLogin)
	router.GET(callbackPath, orchestrator.handleCallback)
	router.GET(keyPath, orchestrator.handleKey)
	router.NoRoute(func(contextGin *gin.Context) {
		contextGin.Redirect(http.StatusFound, orchestrator.config.HomeURL)
	})
}

func (orchestrator *Orchestrator) handleKey(contextGin *gin.Context) {
	contextGin.JSON(http.StatusOK, gin.H{"key": orchestrator.config.PublicKey})
}

func (orchestrator *Orchestrator) handleLogin(contextGin *gin.Context) {
	query := contextGin.Request.URL.Query()

	if _, present := query["provider"]; !present {
		orchestrator.rejectLogin(contextGin, "provider required")
		return
	}
	if _, present := query["origin"]; !present {
		orchestrator.rejectLogin(contextGin, "origin required")
		return
	}
	if _, present := query["nonce"]; !present {
		orchestrator.rejectLogin(contextGin, "nonce required")
		return
	}
	for parameter := range query {
		switch parameter {
		case "provider", "origin", "nonce", "debug":
		default:
			orchestrator.rejectLogin(contextGin, "unrecognised query parameter")
			return
		}
	}

	providerID, parseErr := strconv.Atoi(query.Get("provider"))
	if parseErr != nil {
		orchestrator.rejectLogin(contextGin, "invalid provider")
		return
	}
	descriptor, providerErr := orchestrator.providers.Get(providerID)
	if providerErr != nil {
		orchestrator.rejectLogin(contextGin, "invalid provider")
		return
	}

	origin := query.Get("origin")
	if !originShapePattern.MatchString(origin) {
		orchestrator.rejectLogin(contextGin, "invalid origin")
		return
	}

	sessionID, session := orchestrator.getOrCreateSession(contextGin)

	if !orchestrator.originPermitted(origin) {
		if !loopbackPattern.MatchString(origin) {
			orchestrator.rejectLogin(contextGin, "origin not permitted")
			return
		}
		// Loopback origins may proceed for local development, but only
		// after an explicit interstitial confirmation carrying a token
		// bound to this session.
		if query.Get("debug") == "" || query.Get("debug") != session.DebugToken {
			session.DebugToken = randomHex(16)
			orchestrator.sessions.Put(sessionID, session)
			continueURL := orchestrator.config.BaseURL + contextGin.Request.URL.RequestURI() + "&debug=" + session.DebugToken
			renderWarningPage(contextGin, origin, continueURL)
			return
		}
		session.Debug = true
	}

	nonce := query.Get("nonce")
	if !noncePattern.MatchString(nonce) {
		orchestrator.rejectLogin(contextGin, "invalid nonce")
		return
	}

	session.Nonce = nonce
	session.Origin = origin
	session.Provider = providerID

	switch descriptor.OAuthVersion {
	case 1:
		client := orchestrator.oauth1Client(descriptor)
		requestToken, tokenSecret, requestErr := client.RequestToken()
		if requestErr != nil {
			orchestrator.logger.Error("request token retrieval failed",
				zap.String("code", "login.oauth1.request_token"),
				zap.String("provider", descriptor.Name),
				zap.Error(requestErr))
			orchestrator.metrics.Increment(metricCallbackFailure)
			renderErrorPage(contextGin, http.StatusInternalServerError, "error retrieving request token")
			return
		}
		authorizeURL, urlErr := client.AuthorizeURL(requestToken)
		if urlErr != nil {
			orchestrator.logger.Error("authorize url construction failed",
				zap.String("code", "login.oauth1.authorize_url"),
				zap.String("provider", descriptor.Name),
				zap.Error(urlErr))
			orchestrator.metrics.Increment(metricCallbackFailure)
			renderErrorPage(contextGin, http.StatusInternalServerError, "error retrieving request token")
			return
		}
		session.OAuthTokenSecret = tokenSecret
		session.Valid = true
		orchestrator.sessions.Put(sessionID, session)
		orchestrator.metrics.Increment(metricLoginRedirect)
		contextGin.Redirect(http.StatusFound, authorizeURL)

	case 2:
		session.State = randomHex(16)
		session.Valid = true
		orchestrator.sessions.Put(sessionID, session)
		orchestrator.metrics.Increment(metricLoginRedirect)
		contextGin.Redirect(http.StatusFound, orchestrator.authorizeURL(descriptor, session.State))

	default:
		orchestrator.rejectLogin(contextGin, "invalid provider data")
	}
}

func (orchestrator *Orchestrator) handleCallback(contextGin *gin.Context) {
	sessionCookie, cookieErr := contextGin.Request.Cookie(orchestrator.config.SessionCookieName)
	if cookieErr != nil || sessionCookie == nil || sessionCookie.Value == "" {
		orchestrator.rejectCallback(contextGin, "session expired")
		return
	}

	// The session is consumed before any processing: success or failure,
	// no second callback can be replayed against it.
	session, found := orchestrator.sessions.Take(sessionCookie.Value)
	orchestrator.clearSessionCookie(contextGin)
	if !found || !session.Valid {
		orchestrator.rejectCallback(contextGin, "session expired")
		return
	}

	descriptor, providerErr := orchestrator.providers.Get(session.Provider)
	if providerErr != nil {
		orchestrator.rejectCallback(contextGin, "invalid provider")
		return
	}

	// The provider signals user denial through these parameters; close the
	// popup without completing login. This is not an error.
	if contextGin.Query("error") != "" || contextGin.Query("denied") != "" {
		orchestrator.logger.Info("login denied by user",
			zap.String("code", "login.callback.denied"),
			zap.String("provider", descriptor.Name))
		orchestrator.metrics.Increment(metricCallbackDenied)
		renderClosePage(contextGin)
		return
	}

	var exchangeResult provider.ExchangeResult
	switch descriptor.OAuthVersion {
	case 1:
		oauthToken := contextGin.Query("oauth_token")
		oauthVerifier := contextGin.Query("oauth_verifier")
		if oauthToken == "" || oauthVerifier == "" {
			orchestrator.rejectCallback(contextGin, "invalid parameters")
			return
		}
		client := orchestrator.oauth1Client(descriptor)
		results, accessErr := client.AccessToken(contextGin.Request.Context(), oauthToken, session.OAuthTokenSecret, oauthVerifier)
		if accessErr != nil {
			orchestrator.failCallback(contextGin, descriptor.Name, "login.oauth1.access_token", accessErr, "error retrieving access token")
			return
		}
		exchangeResult = provider.ExchangeResult{AccessToken: results["oauth_token"], Extra: results}

	case 2:
		state := contextGin.Query("state")
		if state == "" || state != session.State {
			orchestrator.rejectCallback(contextGin, "invalid state")
			return
		}
		code := contextGin.Query("code")
		if code == "" {
			orchestrator.rejectCallback(contextGin, "invalid code")
			return
		}
		oauthToken, exchangeErr := orchestrator.oauth2Config(descriptor).Exchange(contextGin.Request.Context(), code)
		if exchangeErr != nil {
			orchestrator.failCallback(contextGin, descriptor.Name, "login.oauth2.exchange", exchangeErr, "error retrieving access token")
			return
		}
		exchangeResult = provider.ExchangeResult{AccessToken: oauthToken.AccessToken, Extra: map[string]string{}}
		if idToken, ok := oauthToken.Extra("id_token").(string); ok {
			exchangeResult.Extra["id_token"] = idToken
		}

	default:
		orchestrator.rejectCallback(contextGin, "invalid provider data")
		return
	}

	identity, identityErr := descriptor.Identity.ExtractIdentity(contextGin.Request.Context(), exchangeResult)
	if identityErr != nil {
		orchestrator.failCallback(contextGin, descriptor.Name, "login.identity", identityErr, "error retrieving identity")
		return
	}

	userID, resolveErr := orchestrator.ledger.Resolve(contextGin.Request.Context(), session.Provider, identity.UniqueID)
	if resolveErr != nil {
		orchestrator.failCallback(contextGin, descriptor.Name, "login.ledger", resolveErr, "internal error")
		return
	}

	timestamp := orchestrator.now().Unix()
	payload := resultPayload{
		Nonce: session.Nonce,
		Tokens: resultTokens{
			Settings: orchestrator.signer.Sign(userID, timestamp, "settings"),
			Game:     orchestrator.signer.Sign(userID, timestamp, "game"),
		},
		Provider:  session.Provider,
		LoginName: identity.DisplayName,
	}

	details := debugDetails{}
	if session.Debug {
		details = debugDetails{
			Nonce:        session.Nonce,
			UserID:       userID,
			Provider:     session.Provider,
			ProviderName: descriptor.Name,
			LoginName:    identity.DisplayName,
			Tokens:       "settings: " + payload.Tokens.Settings + "\ngame: " + payload.Tokens.Game,
		}
	}

	if renderErr := renderResultPage(contextGin, payload, session.Origin, session.Debug, details); renderErr != nil {
		orchestrator.failCallback(contextGin, descriptor.Name, "login.render", renderErr, "internal error")
		return
	}
	orchestrator.metrics.Increment(metricCallbackSuccess)
	orchestrator.logger.Info("login completed",
		zap.String("code", "login.callback.success"),
		zap.String("provider", descriptor.Name),
		zap.String("user_id", userID))
}

func (orchestrator *Orchestrator) rejectLogin(contextGin *gin.Context, message string) {
	orchestrator.metrics.Increment(metricLoginRejected)
	orchestrator.logger.Warn("login rejected",
		zap.String("code", "login.rejected"),
		zap.String("reason", message))
	renderErrorPage(contextGin, http.StatusBadRequest, message)
}

func (orchestrator *Orchestrator) rejectCallback(contextGin *gin.Context, message string) {
	orchestrator.metrics.Increment(metricCallbackFailure)
	orchestrator.logger.Warn("callback rejected",
		zap.String("code", "login.callback.rejected"),
		zap.String("reason", message))
	renderErrorPage(contextGin, http.StatusBadRequest, message)
}

func (orchestrator *Orchestrator) failCallback(contextGin *gin.Context, providerName string, code string, failure error, message string) {
	orchestrator.metrics.Increment(metricCallbackFailure)
	orchestrator.logger.Error("callback failed",
		zap.String("code", code),
		zap.String("provider", providerName),
		zap.Error(failure))
	renderErrorPage(contextGin, http.StatusInternalServerError, message)
}

func (orchestrator *Orchestrator) originPermitted(origin string) bool {
	lowered := strings.ToLower(origin)
	for _, permitted := range orchestrator.config.PermittedOrigins {
		if strings.ToLower(permitted) == lowered {
			return true
		}
	}
	return false
}

func (orchestrator *Orchestrator) getOrCreateSession(contextGin *gin.Context) (string, Session) {
	cookie, cookieErr := contextGin.Request.Cookie(orchestrator.config.SessionCookieName)
	if cookieErr == nil && cookie != nil && cookie.Value != "" {
		if session, found := orchestrator.sessions.Get(cookie.Value); found {
			return cookie.Value, session
		}
		// Expired or unknown cookie value: reuse the id so the browser
		// keeps a single session cookie for the whole flow.
		return cookie.Value, Session{}
	}
	sessionID := NewSessionID()
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     orchestrator.config.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(orchestrator.config.SessionTTL / time.Second),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sessionID, Session{}
}

func (orchestrator *Orchestrator) clearSessionCookie(contextGin *gin.Context) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     orchestrator.config.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (orchestrator *Orchestrator) oauth1Client(descriptor provider.Descriptor) *oauth1.Client {
	return oauth1.NewClient(descriptor.ConsumerKey, descriptor.ConsumerSecret, orchestrator.config.BaseURL+callbackPath, oauth1.Endpoints{
		RequestTokenURL:  descriptor.RequestTokenURL,
		AuthorizationURL: descriptor.AuthorizationURL,
		AccessTokenURL:   descriptor.AccessTokenURL,
	})
}

func (orchestrator *Orchestrator) oauth2Config(descriptor provider.Descriptor) *oauth2.Config {
	authStyle := oauth2.AuthStyleInParams
	if descriptor.AccessTokenBasicAuth {
		authStyle = oauth2.AuthStyleInHeader
	}
	configuration := &oauth2.Config{
		ClientID:     descriptor.ClientID,
		ClientSecret: descriptor.ClientSecret,
		RedirectURL:  orchestrator.config.BaseURL + callbackPath,
		Endpoint: oauth2.Endpoint{
			AuthURL:   descriptor.AuthorizationURL,
			TokenURL:  descriptor.AccessTokenURL,
			AuthStyle: authStyle,
		},
	}
	if descriptor.Scope != "" {
		configuration.Scopes = strings.Split(descriptor.Scope, " ")
	}
	return configuration
}

func (orchestrator *Orchestrator) authorizeURL(descriptor provider.Descriptor, state string) string {
	options := make([]oauth2.AuthCodeOption, 0, len(descriptor.ExtraAuthorizeParams))
	for key, value := range descriptor.ExtraAuthorizeParams {
		options = append(options, oauth2.SetAuthURLParam(key, value))
	}
	return orchestrator.oauth2Config(descriptor).AuthCodeURL(state, options...)
}

func randomHex(byteCount int) string {
	buffer := make([]byte, byteCount)
	if _, err := rand.Read(buffer); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buffer)
}
