package invaders

// ScaledConfig is derived from player count at each tick rather than
// stored on GameState; no code branches on hard-coded player counts
// outside this table.
type ScaledConfig struct {
	AlienCols    int     `json:"alienCols"`
	AlienRows    int     `json:"alienRows"`
	MoveInterval uint64  `json:"moveInterval"` // ticks between formation moves
	ShootRate    float64 `json:"shootRate"`
	Lives        int     `json:"lives"`
}

var scaledConfigTable = map[int]ScaledConfig{
	1: {AlienCols: 11, AlienRows: 5, MoveInterval: 18, ShootRate: 0.016, Lives: 3},
	2: {AlienCols: 13, AlienRows: 5, MoveInterval: 16, ShootRate: 0.020, Lives: 5},
	3: {AlienCols: 14, AlienRows: 6, MoveInterval: 14, ShootRate: 0.030, Lives: 5},
	4: {AlienCols: 15, AlienRows: 6, MoveInterval: 12, ShootRate: 0.042, Lives: 5},
}

// ScaledConfigFor returns the scaling table entry for the given player
// count, clamped to the supported [1,4] range.
func ScaledConfigFor(playerCount int) ScaledConfig {
	if playerCount < 1 {
		playerCount = 1
	}
	if playerCount > 4 {
		playerCount = 4
	}
	return scaledConfigTable[playerCount]
}
