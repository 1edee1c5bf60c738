// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all grid, timing, and resource
// limit constants used by the game core and the room server.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
)

// =============================================================================
// GRID & LAYOUT CONFIGURATION
// =============================================================================

// GridConfig holds the play-field dimensions and entity bounds.
type GridConfig struct {
	Width  int // Grid width in cells
	Height int // Grid height in cells

	PlayerY        int // Fixed y row for all players
	PlayerMinX     int // Left clamp for player x (center)
	PlayerMaxX     int // Right clamp for player x (center)
	PlayerMoveStep int // Cells per tick for one-step move/input

	AlienMinX      int // Left bound before the formation reverses direction
	AlienMaxX      int // Right bound before the formation reverses direction
	AlienRowSpace  int // Vertical spacing between alien rows
	AlienColSpace  int // Horizontal spacing between alien columns
	AlienStartY    int // Y of the topmost alien row at wave start
	GameOverY      int // Y at which a descending alien triggers an invasion

	BaseBulletSpeed int // Cells per tick for any bullet

	CollisionH int // Horizontal hit-box half-width used by all point collisions
}

// DefaultGrid returns the default play-field configuration.
// This is the SINGLE SOURCE OF TRUTH for grid dimensions and bounds.
func DefaultGrid() GridConfig {
	return GridConfig{
		Width:  120,
		Height: 36,

		PlayerY:        33,
		PlayerMinX:     4,
		PlayerMaxX:     115,
		PlayerMoveStep: 2,

		AlienMinX:     2,
		AlienMaxX:     116,
		AlienRowSpace: 2,
		AlienColSpace: 6,
		AlienStartY:   4,
		GameOverY:     30,

		BaseBulletSpeed: 1,

		CollisionH: 3,
	}
}

// =============================================================================
// TICK & TIMING CONFIGURATION
// =============================================================================

// TimingConfig holds tick-rate and phase-duration constants, all
// expressed in ticks at TickRate Hz unless noted otherwise. The tick
// reducer does not read this struct: the wipe durations between waves
// and the respawn delay are constants in internal/invaders/reducer.go.
// WipeExitTicks, WipeRevealTicks and RespawnDelayTicks are therefore
// not used, and WipeHoldTicks sets only the wipe_hold that starts a game.
type TimingConfig struct {
	TickRate    int // Ticks per second (30 Hz)
	TickMs      int // Millisecond interval between ticks (derived, ~33ms)
	CountdownMs int // Millisecond interval between countdown ticks (1s)

	CountdownTicks int // Number of countdown beeps (3, 2, 1)

	WipeExitTicks   int // wipe_exit phase duration
	WipeHoldTicks   int // wipe_hold phase duration
	WipeRevealTicks int // wipe_reveal phase duration

	RespawnDelayTicks int // Ticks between death and eligibility to respawn

	RoomCleanupDelay int // Seconds an empty room is kept before deletion
}

// DefaultTiming returns the default tick and phase timing configuration.
func DefaultTiming() TimingConfig {
	return TimingConfig{
		TickRate:    30,
		TickMs:      33,
		CountdownMs: 1000,

		CountdownTicks: 3,

		WipeExitTicks:   30,
		WipeHoldTicks:   30,
		WipeRevealTicks: 60,

		RespawnDelayTicks: 60,

		RoomCleanupDelay: 300,
	}
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection and capacity limits.
type ResourceLimits struct {
	MaxPlayersPerRoom   int // Hard cap on players in a single room
	MaxRooms            int // Hard cap on concurrently live rooms
	MaxMessagesPerSec   int // Per-connection message rate cap (60/s)
	MaxWSConnsTotal     int // Total websocket connections; not enforced, nothing reads it
	MaxWSConnsPerIP     int // Websocket connections from one IP; not read (the API gate uses ClientGateConfig.MaxSocketsPerIP)
	MaxBulletsPerRoom   int // Live bullets per room; not enforced, nothing reads it
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxPlayersPerRoom: 4,
		MaxRooms:          10_000,
		MaxMessagesPerSec: 60,
		MaxWSConnsTotal:   5_000,
		MaxWSConnsPerIP:   20,
		MaxBulletsPerRoom: 256,
	}
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 8080,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Grid    GridConfig
	Timing  TimingConfig
	Limits  ResourceLimits
	Server  ServerConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Grid:   DefaultGrid(),
		Timing: DefaultTiming(),
		Limits: DefaultLimits(),
		Server: ServerFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
