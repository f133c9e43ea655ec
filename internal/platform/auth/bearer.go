package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates a bearer token and returns the login it names.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type Claims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
}

// Login prefers the provider's username claim and falls back to sub.
func (c *Claims) Login() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Subject
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey enables HS256 verification for development and tests.
	SigningKey []byte
}

type JWTVerifier struct {
	cfg     JWTConfig
	keyFunc jwt.Keyfunc
	opts    []jwt.ParserOption
}

// NewJWTVerifier builds a verifier from cfg. With no signing key and no
// JWKS URL the JWKS location is discovered from the issuer on first use.
func NewJWTVerifier(cfg JWTConfig) *JWTVerifier {
	v := &JWTVerifier{cfg: cfg}

	if len(cfg.SigningKey) > 0 {
		v.opts = append(v.opts, jwt.WithValidMethods([]string{"HS256"}))
		v.keyFunc = func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	} else {
		v.opts = append(v.opts, jwt.WithValidMethods([]string{"RS256"}))
		v.keyFunc = newJWKSCache(cfg.JWKSURL, cfg.Issuer, defaultJWKSCacheTTL).keyFunc
	}
	if cfg.Issuer != "" {
		v.opts = append(v.opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		v.opts = append(v.opts, jwt.WithAudience(cfg.Audience))
	}
	return v
}

func (v *JWTVerifier) Verify(_ context.Context, tokenStr string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.keyFunc, v.opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	login := claims.Login()
	if login == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return login, nil
}

const defaultJWKSCacheTTL = 5 * time.Minute

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// jwksCache holds RSA keys fetched from the provider, refetching on TTL
// expiry or an unknown kid.
type jwksCache struct {
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	jwksURL   string
	issuer    string
	ttl       time.Duration
	fetchedAt time.Time
	client    *http.Client
}

func newJWKSCache(jwksURL, issuer string, ttl time.Duration) *jwksCache {
	return &jwksCache{
		keys:    make(map[string]*rsa.PublicKey),
		jwksURL: jwksURL,
		issuer:  issuer,
		ttl:     ttl,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *jwksCache) keyFunc(token *jwt.Token) (interface{}, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("token has no kid header")
	}
	return c.getKey(kid)
}

func (c *jwksCache) getKey(kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	expired := time.Since(c.fetchedAt) > c.ttl
	c.mu.RUnlock()

	if ok && !expired {
		return key, nil
	}
	if err := c.fetch(); err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if key, ok = c.keys[kid]; !ok {
		return nil, fmt.Errorf("key with kid %q not found in JWKS", kid)
	}
	return key, nil
}

func (c *jwksCache) resolveURL() (string, error) {
	c.mu.RLock()
	u := c.jwksURL
	c.mu.RUnlock()
	if u != "" {
		return u, nil
	}
	if c.issuer == "" {
		return "", fmt.Errorf("no JWKS URL or issuer configured")
	}

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	discovery := strings.TrimRight(c.issuer, "/") + "/.well-known/openid-configuration"
	if err := c.getJSON(discovery, &doc); err != nil {
		return "", fmt.Errorf("OIDC discovery: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("OIDC discovery document missing jwks_uri")
	}

	c.mu.Lock()
	c.jwksURL = doc.JWKSURI
	c.mu.Unlock()
	return doc.JWKSURI, nil
}

func (c *jwksCache) getJSON(url string, out interface{}) error {
	resp, err := c.client.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *jwksCache) fetch() error {
	url, err := c.resolveURL()
	if err != nil {
		return err
	}

	var jwks struct {
		Keys []jwksKey `json:"keys"`
	}
	if err := c.getJSON(url, &jwks); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

func parseRSAPublicKey(k jwksKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
