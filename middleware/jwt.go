// middleware/jwt.go
package middleware

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// AuthCookieName is where the signed session token lives; a
	// Bearer header is accepted as a fallback for non-browser clients.
	AuthCookieName = "engage_auth"

	sessionTTL = 30 * 24 * time.Hour
)

// AuthClaims is the session token payload. Scope is "read" or
// "write"; write tokens satisfy read-guarded routes too.
type AuthClaims struct {
	User  string `json:"user"`
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

func jwtSecret() []byte {
	return []byte(os.Getenv("JWT_SECRET"))
}

// JWTAuth guards a route with the given required scope and attaches
// the authenticated user to the request context. Handlers must still
// check that the authenticated user matches the user the request is
// about.
func JWTAuth(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Cookies(AuthCookieName)
		if tokenStr == "" {
			tokenStr = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		}
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).SendString("LOGIN_NEEDED")
		}

		claims := &AuthClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return jwtSecret(), nil
		})
		if err != nil || !token.Valid || claims.User == "" {
			return c.Status(fiber.StatusUnauthorized).SendString("LOGIN_NEEDED")
		}
		if scope == "write" && claims.Scope != "write" {
			log.Printf("🚫 [JWT] read-scope token on write route %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).SendString("LOGIN_NEEDED")
		}

		c.Locals("user_id", claims.User)
		c.Locals("jti", claims.ID)
		return c.Next()
	}
}

// AuthedUser returns the user id the current token was issued for.
func AuthedUser(c *fiber.Ctx) string {
	if v, ok := c.Locals("user_id").(string); ok {
		return v
	}
	return ""
}

// AuthedJTI returns the current token's id, for session revocation.
func AuthedJTI(c *fiber.Ctx) string {
	if v, ok := c.Locals("jti").(string); ok {
		return v
	}
	return ""
}

// SignToken issues a session token. Exposed separately from
// SetAuthCookies so tests can mint tokens directly.
func SignToken(userID, scope string) (signed, jti string, expiresAt time.Time, err error) {
	jti = uuid.NewString()
	now := time.Now()
	expiresAt = now.Add(sessionTTL)
	claims := &AuthClaims{
		User:  userID,
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret())
	return signed, jti, expiresAt, err
}

// SetAuthCookies issues a write-scope session cookie and returns the
// token id so the caller can persist the session row.
func SetAuthCookies(c *fiber.Ctx, userID string) (jti string, expiresAt time.Time, err error) {
	signed, jti, expiresAt, err := SignToken(userID, "write")
	if err != nil {
		return "", time.Time{}, err
	}
	c.Cookie(&fiber.Cookie{
		Name:     AuthCookieName,
		Value:    signed,
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   os.Getenv("COOKIE_INSECURE") != "true",
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return jti, expiresAt, nil
}

// ClearAuthCookies expires the session cookie.
func ClearAuthCookies(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	})
}
