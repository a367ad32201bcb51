package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jorat/landing/internal/clock"
	"github.com/jorat/landing/internal/models"
	"github.com/sirupsen/logrus"
)

const downloadTokenType = "download"

// DownloadTokenService mints and checks the short-lived tokens that unlock
// the APK download after a successful verification.
type DownloadTokenService struct {
	secretKey []byte
	expiry    time.Duration
	clock     clock.Clock
	logger    *logrus.Logger
}

func NewDownloadTokenService(secret string, expiry time.Duration, clk clock.Clock, logger *logrus.Logger) (*DownloadTokenService, error) {
	secretKey := []byte(secret)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &DownloadTokenService{
		secretKey: secretKey,
		expiry:    expiry,
		clock:     clk,
		logger:    logger,
	}, nil
}

type Claims struct {
	Mobile string `json:"mobile"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

func (s *DownloadTokenService) Issue(mobile string) (*models.DownloadToken, error) {
	now := s.clock.Now()
	jti := uuid.New().String()
	expiresAt := now.Add(s.expiry)

	claims := &Claims{
		Mobile: mobile,
		Type:   downloadTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   mobile,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign download token")
		return nil, fmt.Errorf("failed to sign download token: %w", err)
	}

	return &models.DownloadToken{
		Token:     tokenString,
		JTI:       jti,
		Mobile:    mobile,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *DownloadTokenService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.Type != downloadTokenType {
		return nil, fmt.Errorf("token is not a download token")
	}

	return claims, nil
}
