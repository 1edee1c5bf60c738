package invaders

import "space-invaders-server/internal/config"

// Mode distinguishes a one-player room from a shared-lives co-op room.
type Mode string

const (
	ModeSolo Mode = "solo"
	ModeCoop Mode = "coop"
)

// Status is the room's top-level phase: the wipe phase state machine
// plus the lobby/end states that bracket it.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusCountdown  Status = "countdown"
	StatusWipeExit   Status = "wipe_exit"
	StatusWipeHold   Status = "wipe_hold"
	StatusWipeReveal Status = "wipe_reveal"
	StatusPlaying    Status = "playing"
	StatusGameOver   Status = "game_over"
)

// GameState is both the wire sync payload and the persisted record, so
// every field carries a JSON tag.
type GameState struct {
	RoomID                string            `json:"roomId"`
	Mode                  Mode              `json:"mode"`
	Status                Status            `json:"status"`
	Tick                  uint64            `json:"tick"`
	RNGSeed               uint32            `json:"rngSeed"`
	CountdownRemaining    *int              `json:"countdownRemaining,omitempty"`
	Players               map[string]Player `json:"players"`
	ReadyPlayerIDs        []string          `json:"readyPlayerIds"`
	Entities              []Entity          `json:"entities"`
	Wave                  int               `json:"wave"`
	Lives                 int               `json:"lives"`
	Score                 int               `json:"score"`
	AlienDirection        int               `json:"alienDirection"`
	WipeTicksRemaining    *int              `json:"wipeTicksRemaining,omitempty"`
	WipeWaveNumber        *int              `json:"wipeWaveNumber,omitempty"`
	AlienShootingDisabled bool              `json:"alienShootingDisabled"`
	Config                config.GridConfig `json:"config"`
}

// NewGameState builds a fresh, empty room in the waiting state. No
// players, no entities, no barriers yet: players arrive on join,
// barriers when the game starts (entering wipe_hold), and aliens on
// the first wipe_reveal.
func NewGameState(roomID string, grid config.GridConfig, seed uint32) GameState {
	return GameState{
		RoomID:         roomID,
		Mode:           ModeSolo,
		Status:         StatusWaiting,
		RNGSeed:        seed,
		Players:        make(map[string]Player),
		ReadyPlayerIDs: nil,
		Entities:       nil,
		Wave:           1,
		AlienDirection: 1,
		Config:         grid,
	}
}

// MigrateGameState fills any fields missing from an older persisted
// record with defaults, so a room saved before a schema addition
// remains loadable. migrate(defaults(roomCode)) must equal
// defaults(roomCode): the pass is idempotent on an already-complete
// state.
func MigrateGameState(s GameState, grid config.GridConfig) GameState {
	if s.Players == nil {
		s.Players = make(map[string]Player)
	}
	if s.Status == "" {
		s.Status = StatusWaiting
	}
	if s.Mode == "" {
		s.Mode = ModeSolo
	}
	if s.Wave == 0 {
		s.Wave = 1
	}
	if s.AlienDirection == 0 {
		s.AlienDirection = 1
	}
	if (s.Config == config.GridConfig{}) {
		s.Config = grid
	}
	return s
}
