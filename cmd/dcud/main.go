package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/decleanup/dcu/adapters/events"
	"github.com/decleanup/dcu/adapters/store"
	"github.com/decleanup/dcu/adapters/tokenizer"
	"github.com/decleanup/dcu/internal/config"
	"github.com/decleanup/dcu/service"
	transport "github.com/decleanup/dcu/transport/http"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("daemon exited")
	}
}

func run(log zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach postgres: %w", err)
	}

	pg := store.NewPostgresStore(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: redisClient,
	}, watermill.NewStdLogger(false, false))
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer publisher.Close()

	signKey, err := loadSigningKey(cfg.SigningKeyHex)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	if cfg.SigningKeyHex == "" {
		log.Warn().Msg("no signing key configured, sessions will not survive a restart")
	}

	eventPublisher := events.NewWatermillPublisher(publisher)
	sessions := store.NewRedisSessionStore(redisClient)
	tk := tokenizer.NewJWTTokenizer(signKey)

	authService := service.NewAuthService(pg, sessions, tk, eventPublisher, log).
		WithSessionTTL(cfg.SessionTTL)
	submissionService := service.NewSubmissionService(pg, pg, eventPublisher, log)

	router := transport.SetupRouter(transport.NewHandlers(authService, submissionService))

	log.Info().Str("addr", cfg.ListenAddr).Msg("starting http server")
	return router.Run(cfg.ListenAddr)
}

// loadSigningKey builds the session-token key from the configured
// P-256 scalar, or generates an ephemeral one when unset.
func loadSigningKey(hexScalar string) (*ecdsa.PrivateKey, error) {
	if hexScalar == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	d, ok := new(big.Int).SetString(strings.TrimPrefix(hexScalar, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("signing key is not valid hex")
	}
	curve := elliptic.P256()
	if d.Sign() <= 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, fmt.Errorf("signing key scalar out of range")
	}

	key := &ecdsa.PrivateKey{D: d}
	key.PublicKey.Curve = curve
	key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())
	return key, nil
}
