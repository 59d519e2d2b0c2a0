package ascapi

import (
	"crypto/ecdsa"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	audienceStandard   = "appstoreconnect-v1"
	audienceEnterprise = "apple-developer-enterprise-v1"
)

// Token signs a fresh ES256 JWT valid from now for the key's duration.
func (k *APIKey) Token(now time.Time) (string, time.Time, error) {
	priv, err := k.privateKey()
	if err != nil {
		return "", time.Time{}, err
	}
	duration := k.Duration
	if duration <= 0 {
		duration = DefaultTokenDuration
	}
	expiry := now.Add(duration)

	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry),
		Audience:  jwt.ClaimStrings{k.audience()},
	}
	if k.IssuerID != "" {
		claims.Issuer = k.IssuerID
	} else {
		// individual keys have no issuer
		claims.Subject = "user"
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = k.KeyID
	signed, err := token.SignedString(priv)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "ascapi: sign api token")
	}
	return signed, expiry, nil
}

// TokenSource returns a source that reuses the signed token until it expires.
func (k *APIKey) TokenSource() oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &keyTokenSource{key: k, now: time.Now})
}

func (k *APIKey) audience() string {
	if k.InHouse {
		return audienceEnterprise
	}
	return audienceStandard
}

func (k *APIKey) privateKey() (*ecdsa.PrivateKey, error) {
	priv, err := jwt.ParseECPrivateKeyFromPEM([]byte(k.Key))
	if err != nil {
		return nil, errors.Wrap(err, "ascapi: parse api key private key")
	}
	return priv, nil
}

type keyTokenSource struct {
	key *APIKey
	now func() time.Time

	mu sync.Mutex
}

func (s *keyTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	signed, expiry, err := s.key.Token(s.now())
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}
