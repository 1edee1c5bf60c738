package api_test

import (
	"testing"
	"time"

	"space-invaders-server/internal/api"
)

func testGateConfig() api.ClientGateConfig {
	return api.ClientGateConfig{
		RequestsPerSecond: 10,
		Burst:             5,
		MaxSocketsPerIP:   2,
		CleanupInterval:   time.Minute,
	}
}

func TestClientGateRejectsRequestBurstOverflow(t *testing.T) {
	gate := api.NewClientGate(testGateConfig())
	defer gate.Stop()

	rejected := 0
	for i := 0; i < 50; i++ {
		if !gate.AllowRequest("10.0.0.1") {
			rejected++
		}
	}
	if rejected == 0 {
		t.Fatal("expected 50 instantaneous requests to overflow a burst of 5")
	}

	if !gate.AllowRequest("10.0.0.2") {
		t.Fatal("expected an unrelated address to have its own budget")
	}
}

func TestClientGateCapsSocketsPerIP(t *testing.T) {
	gate := api.NewClientGate(testGateConfig())
	defer gate.Stop()

	if !gate.AcquireSocket("10.0.0.1") || !gate.AcquireSocket("10.0.0.1") {
		t.Fatal("expected the first two sockets to be admitted")
	}
	if gate.AcquireSocket("10.0.0.1") {
		t.Fatal("expected the third socket to be rejected at cap 2")
	}
	if gate.SocketCount("10.0.0.1") != 2 {
		t.Fatalf("expected 2 held sockets, got %d", gate.SocketCount("10.0.0.1"))
	}

	gate.ReleaseSocket("10.0.0.1")
	if !gate.AcquireSocket("10.0.0.1") {
		t.Fatal("expected a freed slot to be reusable")
	}

	if !gate.AcquireSocket("10.0.0.2") {
		t.Fatal("expected an unrelated address to have its own slots")
	}
}
