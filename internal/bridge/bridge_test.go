package bridge_test

import (
	"sync"
	"testing"

	"github.com/earshot-dev/earshot/internal/bridge"
)

func TestMultiFansOut(t *testing.T) {
	a := &bridge.Recorder{}
	b := &bridge.Recorder{}
	m := bridge.Multi{a, b}

	m.Emit("audio-level", map[string]any{"rms": 0.5})
	m.Emit("audio-chunk-ready", nil)

	for name, r := range map[string]*bridge.Recorder{"first": a, "second": b} {
		events := r.Events()
		if len(events) != 2 {
			t.Fatalf("%s recorder got %d events, want 2", name, len(events))
		}
		if events[0].Event != "audio-level" || events[1].Event != "audio-chunk-ready" {
			t.Errorf("%s recorder got events out of order: %v", name, events)
		}
	}
}

func TestRecorderByName(t *testing.T) {
	r := &bridge.Recorder{}
	r.Emit("audio-level", 1)
	r.Emit("audio-chunk-ready", 2)
	r.Emit("audio-level", 3)

	levels := r.ByName("audio-level")
	if len(levels) != 2 {
		t.Fatalf("got %d audio-level events, want 2", len(levels))
	}
	if got := r.ByName("missing"); len(got) != 0 {
		t.Errorf("got %d events for unknown name, want 0", len(got))
	}
}

func TestRecorderConcurrentEmit(t *testing.T) {
	r := &bridge.Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Emit("tick", j)
			}
		}()
	}
	wg.Wait()

	if got := len(r.Events()); got != 800 {
		t.Errorf("recorded %d events, want 800", got)
	}
}

func TestHubEmitWithoutClients(t *testing.T) {
	h := bridge.NewHub(nil)
	// Must not block or panic with nobody connected.
	h.Emit("audio-level", map[string]any{"rms": 0.1})
	if got := h.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d, want 0", got)
	}
}
