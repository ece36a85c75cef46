package core

import "time"

// EventKind identifies what happened. Player action kinds reuse the action
// name ("negotiate", "steal", ...); the engine and stores also emit
// system notices.
type EventKind string

// KindSystemNotice marks events originated by the engine itself rather than a
// player action (entity added/removed, instance lifecycle).
const KindSystemNotice EventKind = "system_notice"

// GameEvent is a discrete occurrence in a world instance. It is immutable
// once published: producers fill every field before Publish and consumers
// only read.
//
// NPCIDs lists the NPCs affected by (or close enough to perceive) the event;
// the engine's Reaction Phase groups drained events by these ids. X/Y is the
// world position where the event occurred, for proximity filters.
type GameEvent struct {
	ID         string         `json:"id"`
	InstanceID string         `json:"instance_id"`
	Kind       EventKind      `json:"kind"`
	AgentID    string         `json:"agent_id,omitempty"`
	NPCIDs     []string       `json:"npc_ids,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewGameEvent constructs an event stamped with a fresh id and UTC time.
func NewGameEvent(instanceID string, kind EventKind, agentID string, npcIDs []string, data map[string]any) GameEvent {
	if data == nil {
		data = map[string]any{}
	}
	return GameEvent{
		ID:         NewID(),
		InstanceID: instanceID,
		Kind:       kind,
		AgentID:    agentID,
		NPCIDs:     npcIDs,
		Data:       data,
		Timestamp:  time.Now().UTC(),
	}
}
