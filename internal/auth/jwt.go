package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vendfleet-backend/internal/config"
	"vendfleet-backend/internal/models"
	"vendfleet-backend/internal/timeutil"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrIncompleteUser = errors.New("token is missing organization or user")
)

// Claims carry the tenant and user a request acts for. Tokens are issued by
// the identity service; GenerateToken exists for tooling and tests.
type Claims struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the caller identity used by the services.
func (c *Claims) Actor() models.Actor {
	return models.Actor{OrganizationID: c.OrganizationID, UserID: c.UserID, Role: c.Role}
}

type JWTManager struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

func NewJWTManager(cfg *config.Config) *JWTManager {
	hours := cfg.JWT.ExpirationHours
	if hours <= 0 {
		hours = 24
	}
	return &JWTManager{
		secret:     []byte(cfg.JWT.Secret),
		issuer:     cfg.JWT.Issuer,
		expiration: time.Duration(hours) * time.Hour,
	}
}

// GenerateToken creates a signed token for an actor
func (j *JWTManager) GenerateToken(actor models.Actor) (string, error) {
	if actor.OrganizationID == "" || actor.UserID == "" {
		return "", ErrIncompleteUser
	}
	now := timeutil.Now()
	claims := &Claims{
		UserID:         actor.UserID,
		OrganizationID: actor.OrganizationID,
		Role:           actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken verifies a JWT token and returns the claims
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return j.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.OrganizationID == "" || claims.UserID == "" {
		return nil, ErrIncompleteUser
	}
	return claims, nil
}
