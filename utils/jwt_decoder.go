package utils

import (
	"errors"
	"fmt"
	"time"

	"roundify/models"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrInvalidToken     = errors.New("invalid token format")
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidIssuer    = errors.New("invalid issuer")
)

// DownloadIssuer is stamped into every download token.
const DownloadIssuer = "roundify"

// VerifyConfig holds verification configuration
type VerifyConfig struct {
	SecretKey      []byte        // HS256
	ExpectedIssuer string        // optional
	ClockSkew      time.Duration // optional
	Now            func() time.Time
}

// SignDownload creates a compact HS256 token for the artifact file of job.
// The token stops verifying at expiresAt.
func SignDownload(secret []byte, job, file string, issuedAt, expiresAt time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("signing key cannot be empty")
	}
	claims := models.DownloadClaims{
		Issuer:    DownloadIssuer,
		Subject:   job,
		IssuedAt:  issuedAt.Unix(),
		ExpiresAt: expiresAt.Unix(),
		File:      file,
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT: %w", err)
	}
	return token, nil
}

// VerifyDownload checks signature, issuer and expiry of a download token
// and returns its claims.
func VerifyDownload(tokenString string, config VerifyConfig) (*models.DownloadClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	if len(config.SecretKey) == 0 {
		return nil, errors.New("no verification key provided")
	}

	tok, err := jwt.ParseSigned(tokenString, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &models.DownloadClaims{}
	if err := tok.Claims(config.SecretKey, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if claims.Subject == "" || claims.File == "" {
		return nil, fmt.Errorf("%w: missing subject or file", ErrInvalidToken)
	}

	now := time.Now()
	if config.Now != nil {
		now = config.Now()
	}
	clockSkew := int64(config.ClockSkew.Seconds())

	if claims.ExpiresAt > 0 && claims.ExpiresAt <= now.Unix()-clockSkew {
		return nil, ErrTokenExpired
	}
	if claims.IssuedAt > 0 && claims.IssuedAt > now.Unix()+clockSkew {
		return nil, ErrTokenNotYetValid
	}
	if config.ExpectedIssuer != "" && claims.Issuer != config.ExpectedIssuer {
		return nil, fmt.Errorf("%w: expected '%s', got '%s'",
			ErrInvalidIssuer, config.ExpectedIssuer, claims.Issuer)
	}

	return claims, nil
}
