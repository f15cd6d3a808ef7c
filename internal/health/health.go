package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sahan/go-idp/internal/web/response"
)

// Pinger is the reachability probe a dependency exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker probes the provider's critical dependencies: the citizen
// database and the credential store.
type Checker struct {
	Database    Pinger
	Credentials Pinger
	Logger      *slog.Logger
}

func NewChecker(database, credentials Pinger, logger *slog.Logger) Checker {
	return Checker{
		Database:    database,
		Credentials: credentials,
		Logger:      logger,
	}
}

type Status struct {
	Status     string                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Check probes every dependency. Both the citizen database and the
// credential store are critical; either failing marks the provider
// unhealthy.
func (c Checker) Check(ctx context.Context) Status {
	components := map[string]ComponentHealth{
		"database":         c.probe(ctx, "database", c.Database),
		"credential_store": c.probe(ctx, "credential_store", c.Credentials),
	}

	status := "healthy"
	for _, component := range components {
		if component.Status != "healthy" {
			status = "unhealthy"
			break
		}
	}

	return Status{
		Status:     status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}
}

func (c Checker) probe(ctx context.Context, name string, pinger Pinger) ComponentHealth {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := pinger.Ping(ctx); err != nil {
		c.Logger.Error("health probe failed",
			slog.String("component", name),
			slog.String("error", err.Error()))

		return ComponentHealth{
			Status:    "unhealthy",
			Message:   err.Error(),
			LatencyMS: time.Since(start).Milliseconds(),
		}
	}

	return ComponentHealth{
		Status:    "healthy",
		LatencyMS: time.Since(start).Milliseconds(),
	}
}

// Handler serves the health endpoint. Unhealthy reports come back with
// HTTP 503 so load balancers pull the instance.
func Handler(checker Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := checker.Check(r.Context())

		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}

		response.JSON(w, code, status)
	})
}
