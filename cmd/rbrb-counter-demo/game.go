package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lockstepnet/rbrb"
)

// actionCooldown is how long a player must wait between accepted actions,
// decremented once per Advance tick.
const actionCooldown = 300 * time.Millisecond

// action is the local input alphabet: a player either does nothing, or
// asks to increment or decrement the shared counter.
type action string

const (
	actionNone      action = ""
	actionIncrement action = "increment"
	actionDecrement action = "decrement"
)

// gameState is the whole of the simulation: a single shared counter, plus
// each player's remaining action cooldown. It's exactly what SaveTo
// serializes and LoadFrom restores, so it must hold everything the
// simulation depends on and nothing else (no view-only state).
type gameState struct {
	Value           int                              `json:"value"`
	PlayerCooldowns map[rbrb.PlayerId]time.Duration `json:"player_cooldowns"`
}

func newGameState() *gameState {
	return &gameState{PlayerCooldowns: make(map[rbrb.PlayerId]time.Duration)}
}

func (g *gameState) marshal() []byte {
	bytes, err := json.Marshal(g)
	if err != nil {
		// gameState only holds an int and a map of durations; it is
		// always representable as JSON.
		panic(fmt.Sprintf("marshal game state: %v", err))
	}
	return bytes
}

func (g *gameState) unmarshal(data []byte) error {
	cleared := newGameState()
	if err := json.Unmarshal(data, cleared); err != nil {
		return fmt.Errorf("unmarshal game state: %w", err)
	}
	*g = *cleared
	return nil
}

// advance applies dt's worth of cooldown decay, then each player's pending
// action if that player is off cooldown, in ascending PlayerId order so
// every peer applies simultaneous actions in the same order.
func (g *gameState) advance(dt time.Duration, actions map[rbrb.PlayerId]action) {
	for id, remaining := range g.PlayerCooldowns {
		remaining -= dt
		if remaining <= 0 {
			delete(g.PlayerCooldowns, id)
		} else {
			g.PlayerCooldowns[id] = remaining
		}
	}

	for _, id := range sortedPlayerIds(actions) {
		if _, onCooldown := g.PlayerCooldowns[id]; onCooldown {
			continue
		}
		switch actions[id] {
		case actionIncrement:
			g.Value++
		case actionDecrement:
			g.Value--
		default:
			continue
		}
		if g.PlayerCooldowns == nil {
			g.PlayerCooldowns = make(map[rbrb.PlayerId]time.Duration)
		}
		g.PlayerCooldowns[id] = actionCooldown
	}
}

func sortedPlayerIds(actions map[rbrb.PlayerId]action) []rbrb.PlayerId {
	ids := make([]rbrb.PlayerId, 0, len(actions))
	for id := range actions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func marshalAction(a action) []byte {
	bytes, err := json.Marshal(a)
	if err != nil {
		panic(fmt.Sprintf("marshal action: %v", err))
	}
	return bytes
}

func unmarshalAction(data []byte) action {
	if len(data) == 0 {
		return actionNone
	}
	var a action
	if err := json.Unmarshal(data, &a); err != nil {
		return actionNone
	}
	return a
}
