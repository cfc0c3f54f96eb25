package domain

import "fmt"

// Action is the instruction attached to a symbol on a trading day.
type Action int

const (
	// ActionNone means the symbol was ranked but no trade is made
	ActionNone Action = iota
	// ActionBuy opens a new position
	ActionBuy
	// ActionHold keeps a position and rebalances it to its target weight
	ActionHold
	// ActionSell closes a position
	ActionSell
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionHold:
		return "hold"
	case ActionSell:
		return "sell"
	default:
		return "none"
	}
}

// ParseAction parses the textual form produced by String.
func ParseAction(s string) (Action, error) {
	switch s {
	case "buy":
		return ActionBuy, nil
	case "hold":
		return ActionHold, nil
	case "sell":
		return ActionSell, nil
	case "none", "":
		return ActionNone, nil
	default:
		return ActionNone, fmt.Errorf("unknown action: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
