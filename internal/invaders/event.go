package invaders

// EventName enumerates the 15 events the reducer and Room may emit.
type EventName string

const (
	EventPlayerJoined       EventName = "player_joined"
	EventPlayerLeft         EventName = "player_left"
	EventPlayerReady        EventName = "player_ready"
	EventPlayerUnready      EventName = "player_unready"
	EventPlayerDied         EventName = "player_died"
	EventPlayerRespawned    EventName = "player_respawned"
	EventCountdownTick      EventName = "countdown_tick"
	EventCountdownCancelled EventName = "countdown_cancelled"
	EventGameStart          EventName = "game_start"
	EventAlienKilled        EventName = "alien_killed"
	EventScoreAwarded       EventName = "score_awarded"
	EventWaveComplete       EventName = "wave_complete"
	EventGameOver           EventName = "game_over"
	EventInvasion           EventName = "invasion"
	EventUFOSpawn           EventName = "ufo_spawn"
)

// ScoreSource identifies what a score_awarded event is crediting.
// commander and wave_bonus are accepted values but never emitted by
// the current reducer: there is no commander unit or end-of-wave
// bonus in the tick order this server implements.
type ScoreSource string

const (
	ScoreSourceAlien      ScoreSource = "alien"
	ScoreSourceUFO        ScoreSource = "ufo"
	ScoreSourceCommander  ScoreSource = "commander"
	ScoreSourceWaveBonus  ScoreSource = "wave_bonus"
)

// GameResult is the terminal outcome carried by a game_over event.
type GameResult string

const (
	ResultVictory GameResult = "victory"
	ResultDefeat  GameResult = "defeat"
)

// Event is one occurrence emitted by a tick or a dispatch-table
// handler, destined for both the wire (`{type:"event", name, data}`)
// and the per-room event log.
type Event struct {
	Name EventName   `json:"name"`
	Data interface{} `json:"data,omitempty"`
}

type PlayerJoinedData struct {
	Player Player `json:"player"`
}

type PlayerLeftData struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason,omitempty"`
}

type PlayerIDData struct {
	PlayerID string `json:"playerId"`
}

type CountdownTickData struct {
	Count int `json:"count"`
}

type CountdownCancelledData struct {
	Reason string `json:"reason"`
}

type AlienKilledData struct {
	AlienID  string  `json:"alienId"`
	PlayerID *string `json:"playerId"`
}

type ScoreAwardedData struct {
	PlayerID *string     `json:"playerId"`
	Points   int         `json:"points"`
	Source   ScoreSource `json:"source"`
}

type WaveCompleteData struct {
	Wave int `json:"wave"`
}

type GameOverData struct {
	Result GameResult `json:"result"`
}

type UFOSpawnData struct {
	X int `json:"x"`
}

func newEvent(name EventName, data interface{}) Event {
	return Event{Name: name, Data: data}
}

// NewEvent is newEvent exported for the Room, which emits events
// directly for the dispatch-table messages that never touch Reduce
// (join, ready, unready, countdown, player_left).
func NewEvent(name EventName, data interface{}) Event {
	return newEvent(name, data)
}
