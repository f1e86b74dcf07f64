package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultDeviceName is stored when a token request names no device.
const DefaultDeviceName = "Unknown Device"

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// DeviceClaims represents the claims in a device token
type DeviceClaims struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies device tokens with one HMAC secret.
type Issuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. A zero expiry issues tokens without exp.
func NewIssuer(secret string, expiry time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Issuer{secret: []byte(secret), expiry: expiry, now: time.Now}, nil
}

// Expiry is the lifetime of issued tokens; zero means they never expire.
func (i *Issuer) Expiry() time.Duration {
	return i.expiry
}

// GenerateDeviceToken generates a JWT token for device authentication
func (i *Issuer) GenerateDeviceToken(deviceID, deviceName string) (string, error) {
	if strings.TrimSpace(deviceID) == "" {
		return "", errors.New("device id is required")
	}
	if strings.TrimSpace(deviceName) == "" {
		deviceName = DefaultDeviceName
	}

	now := i.now()
	claims := &DeviceClaims{
		DeviceID:   deviceID,
		DeviceName: deviceName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*DeviceClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid || claims.DeviceID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer x" header.
func BearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
