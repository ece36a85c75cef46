// Package prompt builds the JSON-only prompts shared by the LLM-backed
// decision providers. Every prompt instructs the model to reply with a single
// JSON object and nothing else, so replies can be parsed without heuristics.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
)

const jsonOnly = "You respond with a single valid JSON object and nothing else. " +
	"No prose, no markdown fences, no commentary before or after the JSON."

// For returns the system prompt and user prompt for an action. The third
// return value is false when the action has no prompt.
func For(action string, reqContext map[string]any) (system, user string, ok bool) {
	ctxJSON := marshalContext(reqContext)
	strict := ""
	if b, _ := reqContext["strict"].(bool); b {
		strict = "\nThe previous attempt was rejected. Follow the schema exactly and fix these violations: " +
			fmt.Sprintf("%v", reqContext["violations"])
	}

	switch action {
	case "generate_stores":
		return jsonOnly + " You are a world builder for a medieval market simulation.",
			`Generate the stores for a market square scenario. Context:
` + ctxJSON + `
Return {"stores": [...]} where each store has: store_id (unique string), name,
proprietor (a person's name), proprietor_personality (one sentence), store_type,
pricing_multiplier (number between 1.0 and 3.0), x, y (numbers). Respect the
store count range and allowed store types in the context.` + strict, true
	case "generate_npcs":
		return jsonOnly + " You are a world builder for a medieval market simulation.",
			`Generate the townsfolk for a market square scenario. Context:
` + ctxJSON + `
Return {"npcs": [...]} where each npc has: npc_id (unique string), name, job
(one of the allowed jobs in the context), personality (one sentence), skills
(object mapping skill name to integer 1-10), initial_trust (number 0-1),
hiring_cost (integer), x, y (numbers). Respect the npc count range.` + strict, true
	case "assign_items_to_stores":
		return jsonOnly + " You are a world builder for a medieval market simulation.",
			`Create the items sold in this market and assign each to a store. Context:
` + ctxJSON + `
Return {"items": [...]} where each item has: item_id (unique string), name,
value (integer >= 1), rarity (common, uncommon, rare, or legendary),
description, tradeable (boolean), store_id (one of the store ids in the
context). Every store must stock at least one item. Respect the item count
range and rarity distribution.` + strict, true
	case "select_target_item":
		return jsonOnly + " You are a world builder for a medieval market simulation.",
			`Pick the quest target item the player must acquire. Context:
` + ctxJSON + `
Return {"item_id": "...", "reason": "..."} choosing an item the player can
plausibly afford after trading, given the starting gold in the context.` + strict, true
	case "npc_reaction":
		return jsonOnly + " You roleplay a non-player character in a living market town. " +
				"Stay in character and react believably to what just happened.",
			`You are this NPC:
` + ctxJSON + `
The "events" list describes what just happened near you. Decide your reaction.
Return {"trust_delta": number between -0.2 and 0.2, "mood": "...",
"last_message": "one short in-character sentence", "patrol_target": {"x": n,
"y": n} or null}.`, true
	case "npc_idle":
		return jsonOnly + " You roleplay a non-player character in a living market town.",
			`You are this NPC:
` + ctxJSON + `
Nothing notable has happened to you lately. Decide a small autonomous behavior.
Return {"mood": "...", "last_message": "one short in-character sentence or empty
string", "patrol_target": {"x": n, "y": n} or null}.`, true
	case "npc_decision":
		return jsonOnly + " You roleplay a non-player character in a living market town " +
				"who is being negotiated with. Decide in character, but respect your price floor.",
			`You are this NPC and a player has made you an offer:
` + ctxJSON + `
The context includes the item's base value, your trust toward the player, and
your minimum acceptable price. Accept only offers at or above your minimum.
Return {"accepted": true or false, "response": "one short in-character
sentence", "counter_offer": number or null}.`, true
	case "npc_interaction":
		return jsonOnly + " You roleplay a non-player character in a living market town.",
			`You are this NPC and a player is talking to you:
` + ctxJSON + `
Reply in character. Return {"response": "what you say", "mood": "...",
"trust_delta": number between -0.05 and 0.05}.`, true
	default:
		return "", "", false
	}
}

// ParseJSON extracts the JSON object from a model reply, tolerating markdown
// code fences around it.
func ParseJSON(raw string) (map[string]any, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("reply is not a JSON object: %w", err)
	}
	return out, nil
}

func marshalContext(m map[string]any) string {
	if m == nil {
		return "{}"
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	return string(b)
}
