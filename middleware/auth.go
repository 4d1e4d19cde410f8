// middleware/auth.go
package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Auth returns the bearer-token guard for player routes. Valid tokens
// put player_id and username into the request locals.
func Auth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Missing authorization header"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid authorization header format"})
		}

		playerID, username, err := VerifyToken(secret, parts[1])
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		c.Locals("playerId", playerID)
		c.Locals("username", username)
		return c.Next()
	}
}

// VerifyToken parses and validates a player JWT, returning the player
// id (sub) and username claims. Used by the HTTP guard and by the
// WebSocket upgrade, which carries the token as a query parameter.
func VerifyToken(secret, tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(401, "Invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", "", fiber.NewError(401, "Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fiber.NewError(401, "Invalid token claims")
	}

	exp, ok := claims["exp"].(float64)
	if !ok || time.Unix(int64(exp), 0).Before(time.Now()) {
		return "", "", fiber.NewError(401, "Token expired")
	}

	playerID, _ := claims["sub"].(string)
	if playerID == "" {
		return "", "", fiber.NewError(401, "Invalid token claims")
	}
	username, _ := claims["username"].(string)

	return playerID, username, nil
}

// SignToken issues a player JWT. Used by the seed tool and tests; the
// production issuer lives in the account service.
func SignToken(secret, playerID, username string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":      playerID,
		"username": username,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// GetPlayerID reads the authenticated player id from the request.
func GetPlayerID(c *fiber.Ctx) (string, error) {
	playerID, ok := c.Locals("playerId").(string)
	if !ok || playerID == "" {
		return "", fiber.NewError(401, "Player not authenticated")
	}
	return playerID, nil
}

// GetUsername reads the authenticated username from the request.
func GetUsername(c *fiber.Ctx) string {
	username, _ := c.Locals("username").(string)
	return username
}
