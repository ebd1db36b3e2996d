package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/esim-fulfillment/utils"
	"github.com/golang-jwt/jwt/v5"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// TokenService issues and validates admin access tokens
type TokenService interface {
	GenerateAdminToken(username string) (accessToken string, expiresAt time.Time, err error)
	ValidateAdminToken(token string) (*AdminTokenClaims, error)
}

// AdminTokenClaims represents claims for admin JWTs
type AdminTokenClaims struct {
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenType string    `json:"token_type"`
	TokenID   string    `json:"jti"`
}

// TokenServiceImpl implements TokenService with HMAC signed tokens
type TokenServiceImpl struct {
	accessTokenTTL time.Duration
	signingMethod  jwt.SigningMethod
	secretKey      []byte
	issuer         string
	audience       string
}

// NewTokenService creates a new token service
func NewTokenService(accessTokenTTL time.Duration, issuer, audience, secretKey string) (TokenService, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	if accessTokenTTL <= 0 {
		accessTokenTTL = utils.AccessTokenTTL
	}
	return &TokenServiceImpl{
		accessTokenTTL: accessTokenTTL,
		signingMethod:  jwt.SigningMethodHS256,
		secretKey:      []byte(secretKey),
		issuer:         issuer,
		audience:       audience,
	}, nil
}

// GenerateAdminToken generates an access token for the operator account
func (s *TokenServiceImpl) GenerateAdminToken(username string) (string, time.Time, error) {
	now := utils.UTCNow()
	expiresAt := now.Add(s.accessTokenTTL)

	tokenID, err := generateTokenID()
	if err != nil {
		return "", time.Time{}, err
	}

	claims := jwt.MapClaims{
		"username":   username,
		"token_type": "access",
		"jti":        tokenID,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
		"iss":        s.issuer,
		"aud":        s.audience,
	}

	signed, err := jwt.NewWithClaims(s.signingMethod, claims).SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateAdminToken validates an admin JWT and returns its claims
func (s *TokenServiceImpl) ValidateAdminToken(token string) (*AdminTokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{s.signingMethod.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsedToken.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return nil, ErrTokenInvalid
	}
	tokenType, ok := claims["token_type"].(string)
	if !ok || tokenType != "access" {
		return nil, ErrTokenInvalid
	}
	tokenID, ok := claims["jti"].(string)
	if !ok {
		return nil, ErrTokenInvalid
	}
	issuedAt, ok := claims["iat"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	expiresAt, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	if utils.UTCNow().After(time.Unix(int64(expiresAt), 0)) {
		return nil, ErrTokenExpired
	}

	return &AdminTokenClaims{
		Username:  username,
		TokenType: tokenType,
		TokenID:   tokenID,
		IssuedAt:  time.Unix(int64(issuedAt), 0),
		ExpiresAt: time.Unix(int64(expiresAt), 0),
	}, nil
}

// generateTokenID generates a unique token ID
func generateTokenID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", bytes), nil
}
