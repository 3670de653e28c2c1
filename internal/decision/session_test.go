package decision

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/thyrook/thinkmate/internal/model"
)

const (
	startFEN     = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	checkmateFEN = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	stalemateFEN = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSessionFromParams(model.NewParamSet(7), zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionFromParams failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSelectMoveLegal(t *testing.T) {
	s := newTestSession(t)

	sel, err := s.SelectMove(startFEN)
	if err != nil {
		t.Fatalf("SelectMove failed: %v", err)
	}
	if sel == nil {
		t.Fatal("expected a move from the start position")
	}

	legal := map[string]bool{}
	for _, c := range candidatesOf(t, s, startFEN) {
		legal[c.Move] = true
	}
	if len(legal) != 20 {
		t.Fatalf("start position has %d legal moves, want 20", len(legal))
	}
	if !legal[sel.Move] {
		t.Errorf("selected move %s is not legal", sel.Move)
	}
	if sel.Move == "e2e5" {
		t.Error("selected an illegal pawn jump")
	}
	if len(sel.Candidates) != DefaultTopK || sel.Candidates[0].Move != sel.Move {
		t.Errorf("candidates = %+v", sel.Candidates)
	}
	for i := 1; i < len(sel.Candidates); i++ {
		if sel.Candidates[i].Score > sel.Candidates[i-1].Score {
			t.Error("candidates not ordered by score")
		}
	}
}

func TestSelectMoveDeterministic(t *testing.T) {
	s := newTestSession(t)
	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"

	first, err := s.SelectMove(fen)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		again, err := s.SelectMove(fen)
		if err != nil {
			t.Fatal(err)
		}
		if again.Move != first.Move || again.Score != first.Score {
			t.Fatalf("call %d returned %s (%g), first was %s (%g)", i, again.Move, again.Score, first.Move, first.Score)
		}
	}
}

func TestSelectMoveGameOver(t *testing.T) {
	s := newTestSession(t)

	tests := []struct {
		name string
		fen  string
	}{
		{"checkmate", checkmateFEN},
		{"stalemate", stalemateFEN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := s.SelectMove(tt.fen)
			if err != nil {
				t.Fatalf("SelectMove failed: %v", err)
			}
			if sel != nil {
				t.Errorf("expected no move, got %s", sel.Move)
			}
		})
	}
}

func TestSelectMoveInvalidFEN(t *testing.T) {
	s := newTestSession(t)

	sel, err := s.SelectMove("not a position")
	if err == nil {
		t.Fatal("expected error for malformed FEN")
	}
	if sel != nil {
		t.Error("expected nil selection on error")
	}

	decisions, failures := s.Stats()
	if decisions != 1 || failures != 1 {
		t.Errorf("stats = (%d, %d), want (1, 1)", decisions, failures)
	}
}

func TestRankLegalMovesNoTerminationCheck(t *testing.T) {
	s := newTestSession(t)

	if _, err := s.RankLegalMoves(checkmateFEN); !errors.Is(err, ErrNoLegalMoves) {
		t.Errorf("checkmate error = %v, want ErrNoLegalMoves", err)
	}

	move, err := s.PredictMove(startFEN)
	if err != nil {
		t.Fatal(err)
	}
	sel, _ := s.SelectMove(startFEN)
	if move != sel.Move {
		t.Errorf("PredictMove = %s, SelectMove = %s", move, sel.Move)
	}
}

func TestNewSessionMissingModel(t *testing.T) {
	_, err := NewSession(filepath.Join(t.TempDir(), "missing.gob"), zap.NewNop())
	if !errors.Is(err, model.ErrModelNotFound) {
		t.Errorf("error = %v, want ErrModelNotFound", err)
	}
}

func TestNewSessionFromArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chess_cnn.gob")
	ps := model.NewParamSet(3)
	if err := ps.Save(path); err != nil {
		t.Fatal(err)
	}

	fromDisk, err := NewSession(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer fromDisk.Close()
	inMemory, err := NewSessionFromParams(ps, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer inMemory.Close()

	a, _ := fromDisk.SelectMove(startFEN)
	b, _ := inMemory.SelectMove(startFEN)
	if a.Move != b.Move {
		t.Errorf("loaded artifact picks %s, in-memory params pick %s", a.Move, b.Move)
	}
}

func candidatesOf(t *testing.T, s *Session, fen string) []Candidate {
	t.Helper()
	c, err := s.RankLegalMoves(fen)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSelectMoveShortFEN(t *testing.T) {
	s := newTestSession(t)

	tests := []struct {
		name string
		fen  string
	}{
		{"placement only", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR"},
		{"no counters", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -"},
		{"no fullmove", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0"},
	}

	want, err := s.SelectMove(startFEN)
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := s.SelectMove(tt.fen)
			if err != nil {
				t.Fatalf("SelectMove failed: %v", err)
			}
			if sel == nil {
				t.Fatal("expected a move")
			}
			if sel.Move != want.Move {
				t.Errorf("move = %s, want %s", sel.Move, want.Move)
			}
		})
	}
}

func TestSelectionEntropy(t *testing.T) {
	s := newTestSession(t)

	sel, err := s.SelectMove(startFEN)
	if err != nil {
		t.Fatal(err)
	}
	// 64 squares bound the entropy at 6 bits
	for name, h := range map[string]float64{"from": sel.FromEntropy, "to": sel.ToEntropy} {
		if h <= 0 || h > 6+1e-9 {
			t.Errorf("%s entropy = %f, want (0, 6]", name, h)
		}
	}
}

func TestPredictMoveMatchesRanking(t *testing.T) {
	s := newTestSession(t)

	for _, fen := range []string{startFEN, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"} {
		move, err := s.PredictMove(fen)
		if err != nil {
			t.Fatal(err)
		}
		if ranked := candidatesOf(t, s, fen); ranked[0].Move != move {
			t.Errorf("PredictMove(%q) = %s, ranking starts with %s", fen, move, ranked[0].Move)
		}
	}
	if _, err := s.PredictMove(checkmateFEN); !errors.Is(err, ErrNoLegalMoves) {
		t.Errorf("error = %v, want ErrNoLegalMoves", err)
	}
}
