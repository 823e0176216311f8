package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
)

// JWTClaims carries the actor identity the engine authorizes against.
type JWTClaims struct {
	UserID string        `json:"user_id"`
	Cargo  domain.Cargo  `json:"cargo"`
	Sector domain.Sector `json:"sector,omitempty"`
	jwt.RegisteredClaims
}

// Actor returns the engine actor for the claims.
func (c *JWTClaims) Actor() domain.Actor {
	return domain.Actor{ID: c.UserID, Cargo: c.Cargo, Sector: c.Sector}
}

// JWTConfig holds JWT signing configuration.
type JWTConfig struct {
	SigningKey []byte
	Issuer     string
	ExpiresIn  time.Duration
}

// GenerateToken creates a signed HS256 token for actor.
func GenerateToken(cfg JWTConfig, actor domain.Actor) (string, time.Time, error) {
	if actor.ID == "" {
		return "", time.Time{}, fmt.Errorf("actor id is required")
	}
	if !actor.Cargo.Known() {
		return "", time.Time{}, fmt.Errorf("unknown cargo %q", actor.Cargo)
	}
	now := time.Now()
	expiresAt := now.Add(cfg.ExpiresIn)

	claims := JWTClaims{
		UserID: actor.ID,
		Cargo:  actor.Cargo,
		Sector: actor.Sector,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   actor.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// ValidateToken parses tokenString and checks signature, expiry, issuer
// and that the cargo is known.
func (cfg JWTConfig) ValidateToken(tokenString string) (*JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if !claims.Cargo.Known() {
		return nil, fmt.Errorf("%w: unknown cargo %q", jwt.ErrTokenInvalidClaims, claims.Cargo)
	}
	return claims, nil
}

// JWTAuth validates Bearer tokens and stores the actor in the request
// context. Failures are rendered by ErrorHandler.
func JWTAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWith(c, apperrors.Unauthorized(apperrors.CodeAuthFailed, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortWith(c, apperrors.Unauthorized(apperrors.CodeAuthFailed, "invalid authorization header format"))
			return
		}

		claims, err := cfg.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortWith(c, apperrors.Unauthorized(apperrors.CodeTokenExpired, "token expired"))
				return
			}
			abortWith(c, apperrors.Wrap(err, apperrors.CodeTokenInvalid, "invalid token", http.StatusUnauthorized))
			return
		}

		actor := claims.Actor()
		c.Set(string(ctxKeyActor), actor)
		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func abortWith(c *gin.Context, err *apperrors.AppError) {
	_ = c.Error(err)
	c.Abort()
}
