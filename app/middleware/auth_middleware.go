// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/covxx/pelattahub-sub002/app/dto"
	"github.com/covxx/pelattahub-sub002/app/services"
	"github.com/gofiber/fiber/v3"
)

// Locals keys shared with the handlers
const (
	LocalTokenClaims = "token_claims"
	LocalActor       = "actor"
	LocalRequestID   = "request_id"
)

// AuthMiddleware verifies bearer tokens issued to operators and admins
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate accepts any valid operator or admin token
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		claims, failure := m.verify(c)
		if failure != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(failure)
		}
		storeClaims(c, claims)
		return c.Next()
	}
}

// RequireAdmin accepts only tokens carrying the admin role
func (m *AuthMiddleware) RequireAdmin() fiber.Handler {
	return func(c fiber.Ctx) error {
		claims, failure := m.verify(c)
		if failure != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(failure)
		}
		if !claims.IsAdmin() {
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				Success: false,
				Message: "Admin role required",
				Error:   dto.ErrorDetail{Code: "ADMIN_ROLE_REQUIRED"},
			})
		}
		storeClaims(c, claims)
		return c.Next()
	}
}

func (m *AuthMiddleware) verify(c fiber.Ctx) (*services.TokenClaims, *dto.APIResponse) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil, &dto.APIResponse{
			Success: false,
			Message: "Authorization header is required",
			Error:   dto.ErrorDetail{Code: "MISSING_AUTHORIZATION_HEADER"},
		}
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, &dto.APIResponse{
			Success: false,
			Message: "Invalid authorization header format. Expected 'Bearer <token>'",
			Error:   dto.ErrorDetail{Code: "INVALID_AUTHORIZATION_FORMAT"},
		}
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return nil, &dto.APIResponse{
			Success: false,
			Message: "Access token is required",
			Error:   dto.ErrorDetail{Code: "MISSING_ACCESS_TOKEN"},
		}
	}

	claims, err := m.tokenService.ValidateToken(token)
	if err != nil {
		var code, msg string
		switch {
		case errors.Is(err, services.ErrTokenExpired):
			code = "TOKEN_EXPIRED"
			msg = "Access token has expired"
		case errors.Is(err, services.ErrTokenInvalid):
			code = "TOKEN_INVALID"
			msg = "Invalid access token"
		default:
			code = "TOKEN_VALIDATION_FAILED"
			msg = "Token validation failed"
		}
		return nil, &dto.APIResponse{Success: false, Message: msg, Error: dto.ErrorDetail{Code: code}}
	}
	return claims, nil
}

func storeClaims(c fiber.Ctx, claims *services.TokenClaims) {
	c.Locals(LocalTokenClaims, claims)
	c.Locals(LocalActor, claims.Subject)

	// Store RequestID for audit logging
	if requestID := c.Get("X-Request-ID"); requestID != "" {
		c.Locals(LocalRequestID, requestID)
	}
}

// GetTokenClaimsFromContext extracts token claims from the request context
func GetTokenClaimsFromContext(c fiber.Ctx) (*services.TokenClaims, bool) {
	claims, ok := c.Locals(LocalTokenClaims).(*services.TokenClaims)
	return claims, ok
}

// GetActorFromContext returns the token subject of the authenticated caller
func GetActorFromContext(c fiber.Ctx) (string, bool) {
	actor, ok := c.Locals(LocalActor).(string)
	return actor, ok && actor != ""
}
