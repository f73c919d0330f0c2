package jwt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrDigest       = errors.New("payload digest mismatch")
)

const issuer = "payroute"

// NotificationClaims bind a merchant notification body to its transaction
type NotificationClaims struct {
	TransactionID uuid.UUID `json:"transactionId"`
	MerchantID    uuid.UUID `json:"merchantId"`
	Status        string    `json:"status"`
	// PayloadDigest is the hex SHA-256 of the notification body.
	PayloadDigest string `json:"payloadDigest"`
	jwt.RegisteredClaims
}

// NotificationSigner issues HS256 tokens that merchants use to verify
// notification bodies they receive.
type NotificationSigner struct {
	secret []byte
	ttl    time.Duration
}

var signJWTToken = func(token *jwt.Token, secret []byte) (string, error) {
	return token.SignedString(secret)
}

// NewNotificationSigner creates a signer
func NewNotificationSigner(secret string, ttl time.Duration) *NotificationSigner {
	return &NotificationSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Sign returns a token over the given body
func (s *NotificationSigner) Sign(transactionID, merchantID uuid.UUID, status string, body []byte) (string, error) {
	now := time.Now()
	claims := &NotificationClaims{
		TransactionID: transactionID,
		MerchantID:    merchantID,
		Status:        status,
		PayloadDigest: Digest(body),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   transactionID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return signJWTToken(token, s.secret)
}

// Verify validates the token and checks it was issued for body
func (s *NotificationSigner) Verify(tokenString string, body []byte) (*NotificationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &NotificationClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*NotificationClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.PayloadDigest != Digest(body) {
		return nil, ErrDigest
	}
	return claims, nil
}

// Digest is the hex SHA-256 of body
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
