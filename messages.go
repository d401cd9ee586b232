package main

import (
	"strings"
	"unicode/utf8"

	"github.com/Seednode/quizmatch/games/memory"
)

const (
	maxNameLength  = 40
	maxTopicLength = 120
)

// Messages coming from clients
type ClientMessage struct {
	Type     string `json:"type"`
	Mode     string `json:"mode,omitempty"`     // select_mode
	Name     string `json:"name,omitempty"`     // add_player / remove_player
	Topic    string `json:"topic,omitempty"`    // start_game
	CardID   string `json:"cardId,omitempty"`   // select_card / showcase
	PlayerID *int   `json:"playerId,omitempty"` // select_answer
	Answer   string `json:"answer,omitempty"`   // select_answer
}

// StateMessage carries the full table after every change.
type StateMessage struct {
	Type    string             `json:"type"` // "state"
	GameID  string             `json:"gameId"`
	Topic   string             `json:"topic"`
	Clients int                `json:"clients"`
	State   memory.SessionView `json:"state"`
}

// EventMessage lets clients animate individual engine events.
type EventMessage struct {
	Type   string   `json:"type"` // "event"
	Kind   string   `json:"kind"`
	Cards  []string `json:"cards,omitempty"`
	PairID int      `json:"pairId"`
	Player string   `json:"player"`
}

// ErrorMessage is sent only to the client whose request failed.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

func newEventMessage(e memory.Event) EventMessage {
	return EventMessage{
		Type:   "event",
		Kind:   e.Kind.String(),
		Cards:  e.Cards,
		PairID: e.PairID,
		Player: e.Player.Name,
	}
}

func (r *Room) stateMessage() StateMessage {
	return StateMessage{
		Type:    "state",
		GameID:  r.id,
		Topic:   r.topic,
		Clients: len(r.clients),
		State:   r.session.Snapshot(),
	}
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// handleIntent applies one client request to the session. Every device at
// the table may act for it.
func (r *Room) handleIntent(in intent) {
	s := r.session
	msg := in.msg

	var (
		changed bool
		err     error
	)

	switch msg.Type {
	case "select_mode":
		var mode memory.Mode
		mode, err = memory.ParseMode(msg.Mode)
		if err == nil {
			changed = s.SelectMode(mode)
		}
	case "show_instructions":
		changed = s.ShowInstructions()
	case "close_instructions":
		changed = s.CloseInstructions()
	case "add_player":
		changed = s.AddPlayer(clip(msg.Name, maxNameLength))
	case "remove_player":
		changed = s.RemovePlayer(msg.Name)
	case "start_game":
		if topic := clip(msg.Topic, maxTopicLength); topic != "" {
			r.topic = topic
		}
		err = r.startGame(s.BeginStart)
		changed = true
	case "restart":
		err = r.startGame(s.Restart)
		changed = true
	case "select_card":
		changed = s.SelectCard(msg.CardID)
	case "showcase":
		err = s.Showcase(msg.CardID)
		changed = err == nil
	case "select_answer":
		if msg.PlayerID != nil {
			changed = s.SelectAnswer(*msg.PlayerID, msg.Answer)
		}
	case "finalize_quiz":
		changed = s.FinalizeQuiz()
	case "return_to_menu":
		r.cancelStart()
		s.ReturnToMenu()
		r.topic = r.cfg.topic
		changed = true
	default:
		// ignore unknown types
		return
	}

	if err != nil {
		logf(r.cfg, "GAMES: %s from %s in %s rejected: %v", msg.Type, in.client.clientID, r.id, err)
		r.sendTo(in.client, ErrorMessage{Type: "error", Message: err.Error()})
	}

	if changed {
		r.broadcastState()
	}
}
