package echoapi

import (
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/mashovsend/core"
	"github.com/trezcool/mashovsend/services/portal"
)

const (
	contextTokenKey = "portalToken"
	tokenAudience   = "MashovSend"
)

// Claims represents the authorization claims transmitted via a JWT.
// The portal password never leaves the server: Subject references the credential vault.
type Claims struct {
	jwt.StandardClaims
	Username    string `json:"username,omitempty"`
	Year        string `json:"year,omitempty"`
	Semel       string `json:"semel,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

func (c Claims) Operator() core.Operator {
	return core.Operator{Username: c.Username, Semel: c.Semel, Name: c.DisplayName}
}

type vaultEntry struct {
	creds     portal.Credentials
	expiresAt time.Time
}

// authenticator keeps the credentials of logged-in operators in memory and issues the tokens that reference them.
type authenticator struct {
	appName string
	key     []byte
	ttl     time.Duration

	mu    sync.Mutex
	vault map[string]vaultEntry
	now   func() time.Time
}

func newAuthenticator(conf *core.Config) *authenticator {
	return &authenticator{
		appName: conf.AppName,
		key:     []byte(conf.Server.SecretKey),
		ttl:     conf.Server.JWTExpirationDelta,
		vault:   make(map[string]vaultEntry),
		now:     time.Now,
	}
}

func (a *authenticator) jwtConfig() middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    a.key,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// issue stores creds in the vault and returns a signed token referencing them.
func (a *authenticator) issue(creds portal.Credentials, acc portal.AccountInfo) (string, error) {
	now := a.now()
	id := uuid.New().String()

	a.mu.Lock()
	for k, e := range a.vault {
		if now.After(e.expiresAt) {
			delete(a.vault, k)
		}
	}
	a.vault[id] = vaultEntry{creds: creds, expiresAt: now.Add(a.ttl)}
	a.mu.Unlock()

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.appName,
			Subject:   id,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(a.ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username:    creds.Username,
		Year:        creds.Year,
		Semel:       creds.Semel,
		DisplayName: acc.DisplayName,
	}
	return a.sign(claims)
}

// sign generates a signed JWT token string representing the Claims.
func (a *authenticator) sign(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// credentials returns the vaulted credentials of the request's token.
func (a *authenticator) credentials(ctx echo.Context) (portal.Credentials, Claims, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return portal.Credentials{}, Claims{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.vault[claims.Subject]
	if !ok || a.now().After(e.expiresAt) {
		delete(a.vault, claims.Subject)
		return portal.Credentials{}, Claims{}, errSessionExpired
	}
	return e.creds, claims, nil
}

func (a *authenticator) revoke(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.vault, claims.Subject)
	a.mu.Unlock()
	return nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}
