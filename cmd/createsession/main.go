// Command createsession signs a session token for a user and optionally stores the user's
// embedding API key in user_settings.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/config"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/pkg/database"
)

const secretLength = 48

var errMissingUser = errors.New("-user is required")

func main() {
	userID := flag.String("user", "", "user id to put in the token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	embeddingKey := flag.String("embedding-key", "", "store this embedding API key for the user (postgres only)")
	flag.Parse()

	if err := run(context.Background(), *userID, *ttl, *embeddingKey); err != nil {
		slog.Error("createsession failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, userID string, ttl time.Duration, embeddingKey string) error {
	if userID == "" {
		return errMissingUser
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	secret := cfg.SessionSecret
	if secret == "" {
		secret, err = randomString(secretLength)
		if err != nil {
			return err
		}

		fmt.Println("SESSION_SECRET was not set; generated one. Start the API with:")
		fmt.Printf("  SESSION_SECRET=%s\n\n", secret)
	}

	token, err := signSession(secret, userID, time.Now(), ttl)
	if err != nil {
		return err
	}

	if embeddingKey != "" {
		if err := storeEmbeddingKey(ctx, cfg.DatabaseURL, userID, embeddingKey); err != nil {
			return err
		}

		fmt.Println("✓ Embedding API key stored for", userID)
	}

	fmt.Println("✓ Session token ready!")
	fmt.Println()
	fmt.Println("User:", userID)
	fmt.Println("Expires:", time.Now().Add(ttl).UTC().Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Token:", token)
	fmt.Println()
	fmt.Println("Example curl command:")
	fmt.Println()
	fmt.Printf("curl -X POST -H \"Authorization: Bearer %s\" -H \"Content-Type: application/json\" \\\n", token)
	fmt.Printf("  -d '{\"page\":\"home\",\"type\":\"freeText\",\"text\":\"Loved the lookup episode\"}' \\\n")
	fmt.Printf("  http://localhost:%s/api/feedback\n", cfg.Port)

	return nil
}

// signSession returns an HS256 token with sub, iat and exp claims.
func signSession(secret, userID string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	return token, nil
}

func storeEmbeddingKey(ctx context.Context, databaseURL, userID, key string) error {
	db, err := database.NewPostgresPool(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	_, err = db.Exec(ctx, `
		INSERT INTO user_settings (user_id, embedding_api_key, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET embedding_api_key = EXCLUDED.embedding_api_key, updated_at = now()
	`, userID, key)
	if err != nil {
		return fmt.Errorf("store embedding api key: %w", err)
	}

	return nil
}

// randomString returns n characters drawn uniformly from [A-Za-z0-9].
func randomString(n int) (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// Rejection sampling avoids modulo bias.
	maxValidByte := byte((255 / len(charset)) * len(charset))

	out := make([]byte, n)
	b := make([]byte, 1)

	for i := range out {
		for {
			if _, err := rand.Read(b); err != nil {
				return "", fmt.Errorf("generate random secret: %w", err)
			}

			if b[0] < maxValidByte {
				out[i] = charset[int(b[0])%len(charset)]

				break
			}
		}
	}

	return string(out), nil
}
