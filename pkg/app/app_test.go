package app

import (
	"context"
	"net"
	"testing"
	"time"

	appevents "github.com/rescp17/lanPeerTalk/internal/app_events"
	"github.com/rescp17/lanPeerTalk/pkg/discovery"
)

// MockDiscoveryAdapter for testing
type MockDiscoveryAdapter struct {
	snapshots []discovery.DiscoveryResult
}

func (m *MockDiscoveryAdapter) Announce(ctx context.Context, service discovery.ServiceInfo) error {
	<-ctx.Done()
	return nil
}

func (m *MockDiscoveryAdapter) Discover(ctx context.Context, service string) <-chan discovery.DiscoveryResult {
	ch := make(chan discovery.DiscoveryResult, len(m.snapshots))
	for _, snapshot := range m.snapshots {
		ch <- snapshot
	}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func TestGracefulShutdown(t *testing.T) {
	app := NewApp(&MockDiscoveryAdapter{}, freePort(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
			t.Errorf("Expected context.Canceled, context.DeadlineExceeded or nil, got: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("App did not shut down within 3 seconds")
	}
}

func TestDiscoveredPeersReachTheUI(t *testing.T) {
	adapter := &MockDiscoveryAdapter{}
	app := NewApp(adapter, freePort(t))

	adapter.snapshots = []discovery.DiscoveryResult{{
		Services: []discovery.ServiceInfo{
			{Name: "other", PeerID: "other-peer", Addr: net.ParseIP("127.0.0.1"), Port: 9000},
			// The local peer must be filtered out of the snapshot.
			{Name: "self", PeerID: app.LocalID(), Addr: net.ParseIP("127.0.0.1"), Port: 9001},
		},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = app.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-app.UIMessages():
			if found, ok := msg.(appevents.FoundPeersMsg); ok {
				if len(found.Peers) != 1 {
					t.Fatalf("expected 1 peer after filtering, got %d", len(found.Peers))
				}
				if found.Peers[0].PeerID != "other-peer" {
					t.Fatalf("unexpected peer %q", found.Peers[0].PeerID)
				}
				return
			}
		case <-deadline:
			t.Fatal("never received a peer snapshot")
		}
	}
}

// freePort grabs an ephemeral port for the signaling server.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to grab a port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
