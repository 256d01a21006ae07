package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rescp17/lanPeerTalk/api"
	appevents "github.com/rescp17/lanPeerTalk/internal/app_events"
	"github.com/rescp17/lanPeerTalk/pkg/concurrency"
	"github.com/rescp17/lanPeerTalk/pkg/discovery"
	"github.com/rescp17/lanPeerTalk/pkg/engine"
	"github.com/rescp17/lanPeerTalk/pkg/p2p"
)

// App is the main application logic controller for the chat demo. It wires
// discovery, the HTTP signaling transport and the per-peer session channels
// together and talks to the TUI over message channels.
type App struct {
	localID    string
	port       int
	guard      *concurrency.ConcurrencyGuard
	discoverer discovery.Adapter
	apiClient  *api.Client
	client     *p2p.Client
	uiMessages chan tea.Msg            // App -> TUI
	appEvents  chan appevents.AppEvent // TUI -> App
}

// NewApp creates a new application instance listening on the given port.
func NewApp(adapter discovery.Adapter, port int) *App {
	localID := uuid.New().String()
	apiClient := api.NewClient(localID)
	client := p2p.NewClient(localID, apiClient, func() (engine.Engine, error) {
		return engine.NewPionEngine(engine.Config{})
	})
	a := &App{
		localID:    localID,
		port:       port,
		guard:      concurrency.NewConcurrencyGuard(),
		discoverer: adapter,
		apiClient:  apiClient,
		client:     client,
		uiMessages: make(chan tea.Msg, 10),
		appEvents:  make(chan appevents.AppEvent),
	}
	client.AddObserver(&uiNotifier{app: a})
	return a
}

// LocalID returns this peer's identity.
func (a *App) LocalID() string { return a.localID }

// UIMessages returns the channel for the UI to listen on for updates.
func (a *App) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events to the
// app.
func (a *App) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

// Run starts the application's main event loop.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.runSignalingServer(ctx)
	})

	g.Go(func() error {
		return a.runAnnouncement(ctx)
	})

	g.Go(func() error {
		return a.runDiscovery(ctx)
	})

	g.Go(func() error {
		defer a.client.Close()
		for {
			select {
			case <-ctx.Done():
				return nil
			case event := <-a.appEvents:
				a.handleAppEvent(event)
			}
		}
	})
	return g.Wait()
}

// runSignalingServer serves the /signal endpoint remote peers deliver
// envelopes to.
func (a *App) runSignalingServer(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: api.NewAPI(a.client),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		a.sendAndLogError("Signaling server failed", err)
		return err
	}
	return nil
}

// runAnnouncement advertises this peer on the local network.
func (a *App) runAnnouncement(ctx context.Context) error {
	info := discovery.ServiceInfo{
		Name:   "peertalk-" + a.localID[:8],
		Type:   discovery.DefaultServerType,
		Domain: discovery.DefaultDomain,
		PeerID: a.localID,
		Port:   a.port,
	}
	if err := a.discoverer.Announce(ctx, info); err != nil {
		a.sendAndLogError("Failed to announce service", err)
		return err
	}
	return nil
}

// runDiscovery begins the process of finding peers on the network.
func (a *App) runDiscovery(ctx context.Context) error {
	service := fmt.Sprintf("%s.%s.", discovery.DefaultServerType, discovery.DefaultDomain)
	results := a.discoverer.Discover(ctx, service)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-results:
			if !ok {
				return nil
			}
			if result.Error != nil {
				a.sendAndLogError("Discovery failed", result.Error)
				continue
			}
			peers := make([]discovery.ServiceInfo, 0, len(result.Services))
			for _, peer := range result.Services {
				if peer.PeerID == "" || peer.PeerID == a.localID {
					continue
				}
				a.apiClient.SetPeerURL(peer.PeerID, peerBaseURL(peer))
				peers = append(peers, peer)
			}
			a.uiMessages <- appevents.FoundPeersMsg{Peers: peers}
		}
	}
}

func peerBaseURL(peer discovery.ServiceInfo) string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(peer.Addr.String(), fmt.Sprintf("%d", peer.Port)))
}

func (a *App) handleAppEvent(event appevents.AppEvent) {
	switch e := event.(type) {
	case appevents.CallPeerMsg:
		a.callPeer(e.Peer)
	case appevents.AcceptInviteMsg:
		a.withChannel(e.PeerID, func(ch *p2p.Channel) {
			ch.Accept(nil, a.failureReporter("Accept failed"))
		})
	case appevents.DenyInviteMsg:
		a.withChannel(e.PeerID, func(ch *p2p.Channel) {
			ch.Deny(nil, a.failureReporter("Deny failed"))
		})
	case appevents.SendMessageMsg:
		a.withChannel(e.PeerID, func(ch *p2p.Channel) {
			ch.Send(e.Text, func() {
				a.uiMessages <- appevents.ChatMessageMsg{PeerID: e.PeerID, Text: e.Text}
			}, a.failureReporter("Send failed"))
		})
	case appevents.HangUpMsg:
		a.withChannel(e.PeerID, func(ch *p2p.Channel) {
			ch.Stop(nil, a.failureReporter("Stop failed"))
		})
	}
}

// callPeer invites a discovered peer; the guard keeps a second call from
// starting while one is being set up.
func (a *App) callPeer(peer discovery.ServiceInfo) {
	err := a.guard.Execute(func() error {
		a.apiClient.SetPeerURL(peer.PeerID, peerBaseURL(peer))
		channel, err := a.client.Channel(peer.PeerID)
		if err != nil {
			return err
		}
		a.uiMessages <- appevents.StatusUpdateMsg{Message: "Calling " + peer.Name + "..."}
		channel.Invite(nil, a.failureReporter("Invite failed"))
		return nil
	})
	if err != nil {
		if err == concurrency.ErrBusy {
			a.sendAndLogError("A call is already being set up", err)
		} else {
			a.sendAndLogError("Call failed", err)
		}
	}
}

func (a *App) withChannel(peerID string, f func(*p2p.Channel)) {
	channel, err := a.client.Channel(peerID)
	if err != nil {
		a.sendAndLogError("No channel for peer", err)
		return
	}
	f(channel)
}

func (a *App) failureReporter(baseMessage string) func(*p2p.Error) {
	return func(err *p2p.Error) {
		a.sendAndLogError(baseMessage, err)
	}
}

// sendAndLogError is a helper function to both log an error and send it to
// the UI.
func (a *App) sendAndLogError(baseMessage string, err error) {
	slog.Error(baseMessage, "error", err)
	a.uiMessages <- appevents.Error{Err: fmt.Errorf("%s: %w", baseMessage, err)}
}

// uiNotifier forwards channel observer events to the TUI.
type uiNotifier struct {
	app *App
}

func (n *uiNotifier) OnInvited(remoteID string) {
	n.app.uiMessages <- appevents.InvitedMsg{PeerID: remoteID}
}

func (n *uiNotifier) OnAccepted(remoteID string) {
	n.app.uiMessages <- appevents.AcceptedMsg{PeerID: remoteID}
}

func (n *uiNotifier) OnDenied(remoteID string) {
	n.app.uiMessages <- appevents.DeniedMsg{PeerID: remoteID}
}

func (n *uiNotifier) OnStarted(remoteID string) {
	n.app.uiMessages <- appevents.SessionStartedMsg{PeerID: remoteID}
}

func (n *uiNotifier) OnStopped(remoteID string) {
	n.app.uiMessages <- appevents.SessionStoppedMsg{PeerID: remoteID}
}

func (n *uiNotifier) OnData(remoteID, message string) {
	n.app.uiMessages <- appevents.ChatMessageMsg{PeerID: remoteID, Text: message, Inbound: true}
}

func (n *uiNotifier) OnStreamAdded(stream *p2p.RemoteStream) {
	n.app.uiMessages <- appevents.StatusUpdateMsg{
		Message: fmt.Sprintf("Remote %s stream added", stream.Source()),
	}
}

func (n *uiNotifier) OnStreamRemoved(stream *p2p.RemoteStream) {
	n.app.uiMessages <- appevents.StatusUpdateMsg{
		Message: fmt.Sprintf("Remote %s stream removed", stream.Source()),
	}
}
