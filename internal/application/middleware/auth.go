package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mediz-app/mediz-billing/internal/interfaces/http/response"
)

// Roles accepted by the billing API. Tokens are minted by the identity service.
const (
	RoleAdmin   = "admin"
	RoleService = "service"
)

// Context keys set by RequireRole
const (
	ContextActorID   = "actor_id"
	ContextActorRole = "actor_role"
)

// Claims represents the JWT claims structure
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HMAC-signed bearer tokens
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a verifier; an empty issuer skips the iss check
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses the token and returns its claims
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// RequireRole authenticates the bearer token and checks its role claim
func RequireRole(verifier *TokenVerifier, roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "Missing authorization header")
			c.Abort()
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenString == "" {
			response.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		if _, ok := allowed[claims.Role]; !ok {
			response.Forbidden(c, "Insufficient role")
			c.Abort()
			return
		}

		c.Set(ContextActorID, claims.Subject)
		c.Set(ContextActorRole, claims.Role)
		c.Next()
	}
}

// ActorID returns the authenticated subject, or "" outside RequireRole
func ActorID(c *gin.Context) string {
	return c.GetString(ContextActorID)
}
