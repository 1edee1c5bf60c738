package invaders

// ActionKind discriminates the queued player actions the reducer
// applies in receive order during tick step 4.
type ActionKind string

const (
	ActionPlayerInput  ActionKind = "input"
	ActionPlayerMove   ActionKind = "move"
	ActionPlayerShoot  ActionKind = "shoot"
	ActionForfeit      ActionKind = "forfeit"
)

// Action is one queued effect of a client message, already validated
// against Room-level preconditions (player attached, status allows it)
// before it reaches the reducer.
type Action struct {
	Kind     ActionKind
	PlayerID string

	// ActionPlayerInput
	Held InputState

	// ActionPlayerMove
	Direction string // "left" | "right"
}
