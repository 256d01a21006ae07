package api

import (
	"io"
	"log/slog"
	"net/http"
)

// MessageDispatcher routes an inbound signaling message to the channel owned
// by the sending peer.
type MessageDispatcher interface {
	OnIncomingSignalingMessage(remoteID, raw string)
}

// maxSignalBytes bounds a single signaling message; SDP blobs stay well under
// this.
const maxSignalBytes = 1 << 20

// API is the HTTP surface remote peers deliver signaling messages to.
type API struct {
	dispatcher MessageDispatcher
	mux        *http.ServeMux
}

// NewAPI creates and initializes a new API instance.
func NewAPI(dispatcher MessageDispatcher) *API {
	api := &API{
		dispatcher: dispatcher,
		mux:        http.NewServeMux(),
	}
	api.registerRoutes()
	return api
}

// ServeHTTP allows the API struct to satisfy the http.Handler interface.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) registerRoutes() {
	a.mux.Handle("POST /signal", http.HandlerFunc(a.signalHandler))
}

// signalHandler accepts one signaling envelope per request. The sender is
// identified by the peer id header its client injects.
func (a *API) signalHandler(w http.ResponseWriter, r *http.Request) {
	remoteID := r.Header.Get(peerIDHeader)
	if remoteID == "" {
		http.Error(w, "Missing peer id", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignalBytes))
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	slog.Info("Signal received", "remote", remoteID, "bytes", len(body))
	a.dispatcher.OnIncomingSignalingMessage(remoteID, string(body))
	w.WriteHeader(http.StatusOK)
}
