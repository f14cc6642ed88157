package api

import (
	"context"
	"net/http"
	"time"

	"github.com/hellofresh/health-go/v5"
	"github.com/redis/go-redis/v9"

	"github.com/tribegate/tribegate/internal/storage"
)

const healthCheckTimeout = 2 * time.Second

// NewHealth builds the /health checker: the database always, Redis when a
// client is configured.
func NewHealth(version string, store *storage.Store, redisClient redis.UniversalClient) (*health.Health, error) {
	opts := []health.Option{
		health.WithComponent(health.Component{Name: "tribegate", Version: version}),
		health.WithChecks(health.Config{
			Name:    "database",
			Timeout: healthCheckTimeout,
			Check:   store.Ping,
		}),
	}
	if redisClient != nil {
		opts = append(opts, health.WithChecks(health.Config{
			Name:    "redis",
			Timeout: healthCheckTimeout,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		}))
	}
	return health.New(opts...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	check := s.health.Measure(r.Context())
	if check.Status == health.StatusOK {
		writeJSON(w, http.StatusOK, check)
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, check)
}
