package db

import (
	"encoding/json"
	"testing"
)

func TestPoolStats_JSONShape(t *testing.T) {
	stats := PoolStats{
		TotalConns:      4,
		IdleConns:       2,
		AcquiredConns:   2,
		MaxConns:        10,
		AcquireCount:    120,
		AcquireDuration: "1.5s",
		Healthy:         true,
	}

	raw, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_count", "acquire_duration", "healthy"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing %q in health payload", key)
		}
	}
	if decoded["healthy"] != true {
		t.Error("expected healthy true")
	}
	if decoded["acquire_duration"] != "1.5s" {
		t.Errorf("acquire_duration = %v, want 1.5s", decoded["acquire_duration"])
	}
}
