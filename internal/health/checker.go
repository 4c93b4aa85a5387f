// Package health exposes liveness and readiness HTTP handlers for the
// engine process.
package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/nexus-edge/opcua-subscription-engine/internal/engine"
)

// Checker provides health check endpoints backed by a subscription driver.
type Checker struct {
	driver      *engine.Driver
	tickTimeout time.Duration
	log         zerolog.Logger
}

// NewChecker creates a health checker. tickTimeout is the maximum
// acceptable gap since the driver's last tick before readiness fails.
func NewChecker(driver *engine.Driver, tickTimeout time.Duration, log zerolog.Logger) *Checker {
	if tickTimeout <= 0 {
		tickTimeout = 5 * time.Second
	}
	return &Checker{
		driver:      driver,
		tickTimeout: tickTimeout,
		log:         log.With().Str("component", "health-checker").Logger(),
	}
}

// HealthResponse is the JSON body returned by the health handlers.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

func (c *Checker) tickHealthy() bool {
	last := c.driver.LastTick()
	if last.IsZero() {
		return false
	}
	return time.Since(last) <= c.tickTimeout
}

func (c *Checker) breakerHealthy() bool {
	return c.driver.BreakerState() != gobreaker.StateOpen
}

// HealthHandler reports overall process health.
func (c *Checker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	tickStatus := "healthy"
	if !c.tickHealthy() {
		tickStatus = "unhealthy"
	}

	breakerStatus := "healthy"
	if !c.breakerHealthy() {
		breakerStatus = "unhealthy"
	}

	overall := "healthy"
	if tickStatus != "healthy" || breakerStatus != "healthy" {
		overall = "degraded"
	}

	resp := HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Components: map[string]string{
			"tick_loop":     tickStatus,
			"address_space": breakerStatus,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if overall != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

// LiveHandler reports whether the process is running at all.
func (c *Checker) LiveHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadyHandler reports whether the tick loop is ticking and the address
// space circuit breaker is not open.
func (c *Checker) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ready := c.tickHealthy() && c.breakerHealthy()

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":        "not_ready",
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
			"tick_loop":     c.tickHealthy(),
			"address_space": c.breakerHealthy(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
