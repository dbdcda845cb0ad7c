package api

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"agenda-tracker/config"
	"agenda-tracker/domain"
)

const (
	lineIssuer          = "https://access.line.me"
	sessionIssuer       = "agenda-tracker"
	defaultJWKSCacheTTL = 15 * time.Minute
	clockSkew           = time.Minute
)

var errInvalidToken = errors.New("invalid token")

// Auth validates LINE ID tokens against the LINE JWKS and HS256 session
// tokens issued after a password sign-in. In test mode every token is an
// HS256 token signed with the test secret.
type Auth struct {
	JWKS          *keyfunc.JWKS
	ChannelID     string
	SessionSecret []byte
	SessionTTL    time.Duration
	TestMode      bool
	TestSecret    []byte

	initOnce    sync.Once
	lineParser  *jwt.Parser
	hmacParser  *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth builds the authenticator for cfg. The JWKS is only fetched when
// LINE sign-in is configured.
func NewAuth(cfg config.Config) (*Auth, error) {
	a := &Auth{
		ChannelID:     cfg.LineChannelID,
		SessionSecret: []byte(cfg.SessionSecret),
		SessionTTL:    cfg.SessionTTL,
		TestMode:      cfg.AuthTestMode,
		TestSecret:    []byte(cfg.TestJWTSecret),
		keyCacheTTL:   defaultJWKSCacheTTL,
	}
	if !a.TestMode && a.ChannelID != "" {
		jwks, err := keyfunc.Get(cfg.LineJWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    10 * time.Second,
			RefreshUnknownKID: true,
		})
		if err != nil {
			return nil, fmt.Errorf("load LINE JWKS: %w", err)
		}
		a.JWKS = jwks
	}
	a.initOnce.Do(a.init)
	return a, nil
}

func (a *Auth) init() {
	a.lineParser = jwt.NewParser(jwt.WithValidMethods([]string{"ES256", "RS256"}))
	a.hmacParser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
}

// Close stops the JWKS refresh goroutine.
func (a *Auth) Close() {
	if a.JWKS != nil {
		a.JWKS.EndBackground()
	}
}

// Identify verifies token and returns the identity it carries.
func (a *Auth) Identify(token []byte) (Identity, error) {
	if len(token) == 0 {
		return Identity{}, errBadAuthorization
	}
	a.initOnce.Do(a.init)
	tokenStr := readOnlyString(token)

	if a.TestMode {
		claims, err := a.parseHMAC(tokenStr, a.TestSecret)
		if err != nil {
			return Identity{}, err
		}
		return identityFromClaims(claims, "", "")
	}

	if len(a.SessionSecret) > 0 {
		if claims, err := a.parseHMAC(tokenStr, a.SessionSecret); err == nil {
			return identityFromClaims(claims, sessionIssuer, "")
		}
	}
	if a.JWKS == nil {
		return Identity{}, errInvalidToken
	}
	parsed, err := a.lineParser.Parse(tokenStr, a.keyForToken)
	if err != nil {
		return Identity{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid claims")
	}
	return identityFromClaims(claims, lineIssuer, a.ChannelID)
}

func (a *Auth) parseHMAC(token string, secret []byte) (jwt.MapClaims, error) {
	if len(secret) == 0 {
		return nil, errInvalidToken
	}
	parsed, err := a.hmacParser.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

func identityFromClaims(claims jwt.MapClaims, issuer, audience string) (Identity, error) {
	now := time.Now()
	if !claims.VerifyExpiresAt(now.Add(-clockSkew).Unix(), true) {
		return Identity{}, errors.New("token expired")
	}
	if !claims.VerifyIssuedAt(now.Add(clockSkew).Unix(), false) {
		return Identity{}, errors.New("token used before issued")
	}
	if audience != "" && !claims.VerifyAudience(audience, true) {
		return Identity{}, errors.New("invalid audience")
	}
	if issuer != "" && !claims.VerifyIssuer(issuer, true) {
		return Identity{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, errors.New("missing sub")
	}
	name, _ := claims["name"].(string)
	return Identity{UserID: sub, DisplayName: name}, nil
}

// IssueSession signs a session token for u.
func (a *Auth) IssueSession(u domain.User) (string, time.Time, error) {
	secret := a.SessionSecret
	issuer := sessionIssuer
	if a.TestMode {
		secret = a.TestSecret
		issuer = ""
	}
	if len(secret) == 0 {
		return "", time.Time{}, errors.New("session tokens are not configured")
	}
	ttl := a.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	now := time.Now()
	expires := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"name": u.DisplayName(),
		"iat":  now.Unix(),
		"exp":  expires.Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
