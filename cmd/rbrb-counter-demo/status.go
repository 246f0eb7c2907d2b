package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/lockstepnet/rbrb"
)

// statusView is the JSON body rbrbctl's "status" command reads.
type statusView struct {
	LocalPlayer      rbrb.PlayerId `json:"local_player"`
	HostFrame        rbrb.Frame    `json:"host_frame"`
	UnconfirmedFrame rbrb.Frame    `json:"unconfirmed_frame"`
	Value            int           `json:"value"`
}

// statusTracker holds the latest snapshot the game loop publishes, read
// by the status HTTP handler from a different goroutine.
type statusTracker struct {
	mu   sync.RWMutex
	view statusView
}

func newStatusTracker(localPlayer rbrb.PlayerId) *statusTracker {
	return &statusTracker{view: statusView{LocalPlayer: localPlayer}}
}

func (t *statusTracker) publish(hostFrame, unconfirmedFrame rbrb.Frame, value int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.view.HostFrame = hostFrame
	t.view.UnconfirmedFrame = unconfirmedFrame
	t.view.Value = value
}

func (t *statusTracker) snapshot() statusView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view
}

func (t *statusTracker) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(t.snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
