package invaders

import "testing"

func TestRNGNextIsDeterministic(t *testing.T) {
	a := &RNG{Seed: 12345}
	b := &RNG{Seed: 12345}

	for i := 0; i < 50; i++ {
		va := a.Next()
		vb := b.Next()
		if va != vb {
			t.Fatalf("sample %d diverged: %v != %v", i, va, vb)
		}
		if va < 0 || va >= 1 {
			t.Fatalf("sample %d out of [0,1): %v", i, va)
		}
	}
}

func TestRNGAdvancesSeed(t *testing.T) {
	r := &RNG{Seed: 1}
	first := r.Seed
	r.Next()
	if r.Seed == first {
		t.Fatal("seed did not advance after Next")
	}
}

func TestPickUFOScoreStaysInFamily(t *testing.T) {
	r := &RNG{Seed: 99}
	for i := 0; i < 100; i++ {
		score := pickUFOScore(r)
		found := false
		for _, v := range UFOScoreFamily {
			if v == score {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("pickUFOScore returned %d, not in %v", score, UFOScoreFamily)
		}
	}
}
