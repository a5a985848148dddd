package main

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ncuskey/solid-couscous/internal/api"
	"github.com/ncuskey/solid-couscous/internal/events"
	"github.com/ncuskey/solid-couscous/internal/storage/postgres"
)

const (
	auditRetryPeriod = 15 * time.Second
	auditFlushWait   = 2 * time.Second
)

var errAuditOffline = errors.New("audit trail not connected")

// auditStore keeps the Postgres audit trail attached to the event stream.
// The box never waits on it: until it connects, events are only logged.
type auditStore struct {
	deviceID string

	mu     sync.Mutex
	client *postgres.Client
}

// Run connects, retrying until it succeeds, then pings on the same period.
func (a *auditStore) Run(ctx context.Context) error {
	api.SetPostgresState(false, false)

	ticker := time.NewTicker(auditRetryPeriod)
	defer ticker.Stop()
	for {
		api.SetPostgresState(a.check(), false)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *auditStore) check() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		c, err := postgres.New(a.deviceID)
		if err != nil {
			log.Printf("postgres: %v", err)
			return false
		}
		a.client = c
		events.SetStore(c)
		log.Printf("postgres: audit trail attached")
	}
	if err := a.client.Ping(); err != nil {
		log.Printf("postgres: ping failed: %v", err)
		return false
	}
	return true
}

// Query reads back the stored trail for the admin events endpoint.
func (a *auditStore) Query(ctx context.Context, limit int) ([]postgres.EventRow, error) {
	a.mu.Lock()
	c := a.client
	a.mu.Unlock()
	if c == nil {
		return nil, errAuditOffline
	}
	return c.Query(ctx, limit)
}

// Close detaches the store. Called after the shutdown event is emitted.
func (a *auditStore) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return
	}
	if !events.Flush(auditFlushWait) {
		log.Printf("postgres: %d events still queued at shutdown", events.Pending())
	}
	events.SetStore(nil)
	_ = a.client.Close()
	a.client = nil
}
