package domain

import "fmt"

// NamedAction is one of the closed vocabulary of non-discard actions.
type NamedAction string

const (
	ActionChiLow    NamedAction = "chi_low"
	ActionChiMid    NamedAction = "chi_mid"
	ActionChiHigh   NamedAction = "chi_high"
	ActionPon       NamedAction = "pon"
	ActionKanSelect NamedAction = "kan_select"
	ActionReach     NamedAction = "reach"
	ActionHora      NamedAction = "hora"
	ActionRyukyoku  NamedAction = "ryukyoku"
	ActionNukidora  NamedAction = "nukidora"
	ActionNone      NamedAction = "none"
)

var namedActions = map[NamedAction]struct{}{
	ActionChiLow: {}, ActionChiMid: {}, ActionChiHigh: {}, ActionPon: {}, ActionKanSelect: {},
	ActionReach: {}, ActionHora: {}, ActionRyukyoku: {}, ActionNukidora: {}, ActionNone: {},
}

// Action is either a NamedAction or a discard of a specific tile.
// The variant is chosen once when the action is parsed.
type Action struct {
	name NamedAction
	tile Tile
}

// Named returns a named action.
func Named(name NamedAction) Action {
	return Action{name: name}
}

// Discard returns a discard action for tile.
func Discard(tile Tile) Action {
	return Action{tile: tile}
}

// ParseAction maps a wire action string onto the tagged variant.
func ParseAction(s string) (Action, error) {
	if _, ok := namedActions[NamedAction(s)]; ok {
		return Named(NamedAction(s)), nil
	}
	tile := Tile(s)
	if tile.Valid() {
		return Discard(tile), nil
	}
	return Action{}, fmt.Errorf("%w: unknown action %q", ErrMalformedPayload, s)
}

// IsDiscard reports whether the action discards a tile.
func (a Action) IsDiscard() bool {
	return a.name == "" && a.tile != NoTile
}

// Name returns the named action, or "" for discards.
func (a Action) Name() NamedAction {
	return a.name
}

// DiscardTile returns the discarded tile, or NoTile for named actions.
func (a Action) DiscardTile() Tile {
	if a.name != "" {
		return NoTile
	}
	return a.tile
}

// IsZero reports whether the action was never set.
func (a Action) IsZero() bool {
	return a.name == "" && a.tile == NoTile
}

// IsCall reports whether the action claims the last discard (chi, pon, kan).
func (a Action) IsCall() bool {
	switch a.name {
	case ActionChiLow, ActionChiMid, ActionChiHigh, ActionPon, ActionKanSelect:
		return true
	default:
		return false
	}
}

// ConsumedCount is the number of hand tiles a call action consumes, 0 otherwise.
func (a Action) ConsumedCount() int {
	switch a.name {
	case ActionChiLow, ActionChiMid, ActionChiHigh, ActionPon:
		return 2
	case ActionKanSelect:
		return 3
	default:
		return 0
	}
}

// String returns the wire form: the action name or the discarded tile.
func (a Action) String() string {
	if a.name != "" {
		return string(a.name)
	}
	return string(a.tile)
}
