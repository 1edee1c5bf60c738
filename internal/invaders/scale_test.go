package invaders

import "testing"

func TestScaledConfigForClampsRange(t *testing.T) {
	if ScaledConfigFor(0) != ScaledConfigFor(1) {
		t.Fatal("playerCount below 1 should clamp to 1")
	}
	if ScaledConfigFor(10) != ScaledConfigFor(4) {
		t.Fatal("playerCount above 4 should clamp to 4")
	}
}

func TestScaledConfigForTableCoversOneToFour(t *testing.T) {
	for n := 1; n <= 4; n++ {
		cfg := ScaledConfigFor(n)
		if cfg.AlienCols == 0 || cfg.AlienRows == 0 || cfg.MoveInterval == 0 {
			t.Fatalf("ScaledConfigFor(%d) looks zero-valued: %+v", n, cfg)
		}
	}
}

func TestScaledConfigLivesGrowWithPlayerCount(t *testing.T) {
	solo := ScaledConfigFor(1)
	coop := ScaledConfigFor(4)
	if coop.Lives < solo.Lives {
		t.Fatalf("expected coop lives >= solo lives, got solo=%d coop=%d", solo.Lives, coop.Lives)
	}
}
