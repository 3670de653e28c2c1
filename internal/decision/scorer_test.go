package decision

import (
	"testing"

	"github.com/notnil/chess"

	"github.com/thyrook/thinkmate/internal/model"
)

func startMoves(t *testing.T) []*chess.Move {
	t.Helper()
	return chess.NewGame().ValidMoves()
}

func uniformField() model.ProbabilityField {
	var zeros [64]float64
	return model.NewProbabilityField(zeros, zeros)
}

func TestScoreMovesStartPosition(t *testing.T) {
	pf := uniformField()
	candidates := ScoreMoves(&pf, startMoves(t))

	if len(candidates) != 20 {
		t.Fatalf("got %d candidates, want 20", len(candidates))
	}
	for _, c := range candidates {
		if len(c.Move) != 4 {
			t.Errorf("move %q is not 4 characters", c.Move)
		}
		if c.Score <= 0 {
			t.Errorf("move %s has score %f", c.Move, c.Score)
		}
	}
}

func TestTieBreak(t *testing.T) {
	pf := uniformField()
	candidates := ScoreMoves(&pf, startMoves(t))

	// All scores are equal: b1 is the lowest origin with a move, a3 its
	// lowest destination.
	best, ok := Best(candidates)
	if !ok || best.Move != "b1a3" {
		t.Fatalf("Best = %q, want b1a3", best.Move)
	}

	Rank(candidates)
	if candidates[0].Move != "b1a3" || candidates[1].Move != "b1c3" {
		t.Errorf("ranked head = %s, %s; want b1a3, b1c3", candidates[0].Move, candidates[1].Move)
	}
	for i := 1; i < len(candidates); i++ {
		prev, cur := candidates[i-1], candidates[i]
		if prev.From > cur.From || (prev.From == cur.From && prev.To > cur.To) {
			t.Fatalf("tie order broken at %s before %s", prev.Move, cur.Move)
		}
	}
}

func TestRankByScore(t *testing.T) {
	candidates := []Candidate{
		{Move: "a2a3", From: 8, To: 16, Score: 0.1},
		{Move: "e2e4", From: 12, To: 28, Score: 0.5},
		{Move: "d2d4", From: 11, To: 27, Score: 0.5},
		{Move: "g1f3", From: 6, To: 21, Score: 0.3},
	}

	best, _ := Best(candidates)
	if best.Move != "d2d4" {
		t.Errorf("Best = %s, want d2d4", best.Move)
	}

	Rank(candidates)
	want := []string{"d2d4", "e2e4", "g1f3", "a2a3"}
	for i, w := range want {
		if candidates[i].Move != w {
			t.Errorf("rank %d = %s, want %s", i, candidates[i].Move, w)
		}
	}
}

func TestScoreMovesPromotionCollapse(t *testing.T) {
	opt, err := chess.FEN("8/4P3/8/8/8/8/k7/7K w - - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	moves := chess.NewGame(opt).ValidMoves()

	pf := uniformField()
	candidates := ScoreMoves(&pf, moves)

	promotions := 0
	for _, c := range candidates {
		if c.Move == "e7e8" {
			promotions++
		}
	}
	if promotions != 1 {
		t.Errorf("e7e8 appears %d times, want 1", promotions)
	}
}

func TestBestEmpty(t *testing.T) {
	if _, ok := Best(nil); ok {
		t.Error("Best(nil) should report no candidate")
	}
}
