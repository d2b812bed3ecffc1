package middlewares

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/snapgate/snapgate/internal/auth"
)

// APISignatureMiddleware rejects requests whose signature headers do
// not verify against the configured admin public key.
func APISignatureMiddleware(verifier *auth.SignatureVerifier) fiber.Handler {
	return func(c fiber.Ctx) error {
		signatureHeader := c.Get("X-API-Signature")
		timestampHeader := c.Get("X-API-Timestamp")

		err := verifier.VerifyRequest(
			c.Method(),
			c.Path(),
			signatureHeader,
			timestampHeader,
			c.Body(),
		)

		if err != nil {
			log.Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("API signature verification failed")

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API signature",
			})
		}

		return c.Next()
	}
}
