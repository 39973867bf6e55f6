package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken covers every verification failure (bad signature,
// expired, malformed). Callers never learn which check failed.
var ErrInvalidToken = errors.New("invalid token")

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Service mints and verifies the access/refresh token pair. The two token
// kinds are signed with distinct secrets so one can never stand in for the
// other.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewService(accessSecret, refreshSecret string) *Service {
	return &Service{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     AccessTokenTTL,
		refreshTTL:    RefreshTokenTTL,
	}
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssuePair mints a fresh access/refresh token pair for the user.
func (s *Service) IssuePair(userID int) (accessToken, refreshToken string, err error) {
	accessToken, err = s.sign(userID, s.accessSecret, s.accessTTL)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.sign(userID, s.refreshSecret, s.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (s *Service) ParseAccess(token string) (int, error) {
	return s.parse(token, s.accessSecret)
}

func (s *Service) ParseRefresh(token string) (int, error) {
	return s.parse(token, s.refreshSecret)
}

func (s *Service) sign(userID int, secret []byte, ttl time.Duration) (string, error) {
	// The random jti keeps every minted token distinct, so rotation always
	// replaces the stored refresh token even within the same second.
	jti := make([]byte, 8)
	if _, err := rand.Read(jti); err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
		"jti":     hex.EncodeToString(jti),
	})
	return token.SignedString(secret)
}

func (s *Service) parse(tokenString string, secret []byte) (int, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, ErrInvalidToken
	}
	return int(userID), nil
}
