package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure: malformed, expired or
// tampered tokens are not distinguished to the caller.
var ErrInvalidToken = errors.New("invalid token")

const (
	AccessTTL  = time.Hour
	RefreshTTL = 7 * 24 * time.Hour
)

// Service issues and verifies the two token kinds. Access and refresh tokens
// are signed with distinct secrets so one can never stand in for the other.
type Service struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func NewService(accessSecret, refreshSecret []byte) *Service {
	return &Service{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     AccessTTL,
		RefreshTTL:    RefreshTTL,
	}
}

func (s *Service) IssueAccessToken(userID string) (string, error) {
	return s.sign(userID, s.AccessSecret, s.AccessTTL)
}

func (s *Service) IssueRefreshToken(userID string) (string, error) {
	return s.sign(userID, s.RefreshSecret, s.RefreshTTL)
}

func (s *Service) VerifyAccessToken(raw string) (string, error) {
	return verify(raw, s.AccessSecret)
}

func (s *Service) VerifyRefreshToken(raw string) (string, error) {
	return verify(raw, s.RefreshSecret)
}

func (s *Service) sign(userID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func verify(raw string, secret []byte) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
