// Package health expone el endpoint de liveness.
package health

import (
	"context"
	"net/http"

	"github.com/mercatto/authd/internal/http/helpers"
)

// Pinger reporta si una dependencia responde.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Controller responde healthz con el estado del storage.
type Controller struct {
	store Pinger
}

// NewController crea el controller de health.
func NewController(store Pinger) *Controller {
	return &Controller{store: store}
}

// Healthz maneja GET /healthz
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if c.store != nil {
		if err := c.store.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	helpers.WriteJSON(w, code, map[string]string{"status": status})
}
