package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// readinessState tracks dependencies that gate /ready.
// The actuator is always required. MQTT and Postgres are required only when
// the box is configured to depend on them.
type readinessState struct {
	mu                sync.RWMutex
	actuatorReady     bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

var readiness = &readinessState{mqttOptional: true, postgresOptional: true}

// SetActuatorReady marks the lock driver as constructed and usable.
func SetActuatorReady(ready bool) {
	readiness.mu.Lock()
	readiness.actuatorReady = ready
	readiness.mu.Unlock()
}

// SetMQTTState records broker connectivity and whether it gates readiness.
func SetMQTTState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
	readiness.mu.Unlock()
}

// SetPostgresState records audit store connectivity and whether it gates readiness.
func SetPostgresState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
	readiness.mu.Unlock()
}

type CheckResult struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckResult `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

func dependencyCheck(ok, optional bool) CheckResult {
	switch {
	case ok:
		return CheckResult{Status: "ok", Optional: optional}
	case optional:
		return CheckResult{Status: "unavailable", Optional: true}
	default:
		return CheckResult{Status: "not_ready"}
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	checks := map[string]CheckResult{
		"actuator": dependencyCheck(readiness.actuatorReady, false),
		"mqtt":     dependencyCheck(readiness.mqttConnected, readiness.mqttOptional),
		"postgres": dependencyCheck(readiness.postgresConnected, readiness.postgresOptional),
	}
	readiness.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: checks}
	var blocking []string
	for _, name := range []string{"actuator", "mqtt", "postgres"} {
		if checks[name].Status == "not_ready" {
			resp.Ready = false
			blocking = append(blocking, name)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		resp.NotReadyMsg = "waiting on " + strings.Join(blocking, ", ")
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
