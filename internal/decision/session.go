package decision

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/notnil/chess"
	"go.uber.org/zap"

	"github.com/thyrook/thinkmate/internal/data"
	"github.com/thyrook/thinkmate/internal/model"
)

// DefaultTopK is the number of candidates attached to a Selection.
const DefaultTopK = 3

// ErrNoLegalMoves is returned by RankLegalMoves when the side to move has
// no legal move.
var ErrNoLegalMoves = errors.New("no legal moves")

// Selection is the chosen move with its runners-up. FromEntropy and
// ToEntropy are the entropies in bits of the two square distributions;
// lower means a more confident network.
type Selection struct {
	Move        string
	Score       float64
	Candidates  []Candidate
	FromEntropy float64
	ToEntropy   float64
	Elapsed     time.Duration
}

// Session owns a loaded network and answers move queries. Calls are
// serialized.
type Session struct {
	mu     sync.Mutex
	net    *model.Network
	logger *zap.Logger
	topK   int

	// Statistics
	decisions int
	failures  int
}

// NewSession loads the parameter artifact at modelPath. A missing artifact
// yields an error wrapping model.ErrModelNotFound.
func NewSession(modelPath string, logger *zap.Logger) (*Session, error) {
	ps, err := model.LoadParamSet(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	logger.Info("Model loaded", zap.String("path", modelPath), zap.Int("params", ps.NumParams()))
	return NewSessionFromParams(ps, logger)
}

// NewSessionFromParams builds a session over an in-memory parameter set.
func NewSessionFromParams(ps *model.ParamSet, logger *zap.Logger) (*Session, error) {
	net, err := model.NewNetwork(ps)
	if err != nil {
		return nil, err
	}
	return newSession(net, logger), nil
}

func newSession(net *model.Network, logger *zap.Logger) *Session {
	return &Session{
		net:    net,
		logger: logger,
		topK:   DefaultTopK,
	}
}

// SetTopK sets how many candidates a Selection carries.
func (s *Session) SetTopK(k int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k < 1 {
		k = 1
	}
	s.topK = k
}

// SelectMove returns the highest-scoring legal move for fen, or nil when
// the game is over or there is nothing to play.
func (s *Session) SelectMove(fen string) (sel *Selection, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.decisions++
	defer func() {
		if r := recover(); r != nil {
			sel, err = nil, fmt.Errorf("move selection panicked: %v", r)
		}
		if err != nil {
			s.failures++
			s.logger.Error("Move selection failed", zap.String("fen", fen), zap.Error(err))
		}
	}()

	game, err := newGame(fen)
	if err != nil {
		return nil, err
	}
	if game.Outcome() != chess.NoOutcome {
		s.logger.Debug("Game over", zap.String("fen", fen), zap.String("outcome", string(game.Outcome())), zap.String("method", game.Method().String()))
		return nil, nil
	}
	moves := game.ValidMoves()
	if len(moves) == 0 {
		return nil, nil
	}

	candidates, pf, err := s.score(game.Position(), moves)
	if err != nil {
		return nil, err
	}
	Rank(candidates)

	k := s.topK
	if k > len(candidates) {
		k = len(candidates)
	}
	sel = &Selection{
		Move:        candidates[0].Move,
		Score:       candidates[0].Score,
		Candidates:  candidates[:k],
		FromEntropy: model.GetPredictionEntropy(pf.From[:]),
		ToEntropy:   model.GetPredictionEntropy(pf.To[:]),
		Elapsed:     time.Since(start),
	}

	s.logger.Debug("Move selected",
		zap.String("move", sel.Move),
		zap.Float64("score", sel.Score),
		zap.Float64("from_entropy", sel.FromEntropy),
		zap.Float64("to_entropy", sel.ToEntropy),
		zap.Int("legal_moves", len(candidates)),
		zap.Duration("elapsed", sel.Elapsed))
	return sel, nil
}

// RankLegalMoves scores every legal move of fen without checking for game
// termination and returns them best first.
func (s *Session) RankLegalMoves(fen string) ([]Candidate, error) {
	candidates, err := s.legalCandidates(fen)
	if err != nil {
		return nil, err
	}
	Rank(candidates)
	return candidates, nil
}

// PredictMove returns the top-ranked legal move of fen.
func (s *Session) PredictMove(fen string) (string, error) {
	candidates, err := s.legalCandidates(fen)
	if err != nil {
		return "", err
	}
	best, ok := Best(candidates)
	if !ok {
		return "", ErrNoLegalMoves
	}
	return best.Move, nil
}

// legalCandidates scores the legal moves of fen in enumeration order.
func (s *Session) legalCandidates(fen string) (candidates []Candidate, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			candidates, err = nil, fmt.Errorf("move ranking panicked: %v", r)
		}
	}()

	game, err := newGame(fen)
	if err != nil {
		return nil, err
	}
	moves := game.ValidMoves()
	if len(moves) == 0 {
		return nil, ErrNoLegalMoves
	}
	candidates, _, err = s.score(game.Position(), moves)
	return candidates, err
}

func (s *Session) score(pos *chess.Position, moves []*chess.Move) ([]Candidate, *model.ProbabilityField, error) {
	planes, err := data.TensorizeBoard(pos.Board())
	if err != nil {
		return nil, nil, err
	}
	pf, err := s.net.Predict(&planes)
	if err != nil {
		return nil, nil, err
	}

	candidates := ScoreMoves(&pf, moves)
	if len(candidates) == 0 {
		return nil, nil, ErrNoLegalMoves
	}
	return candidates, &pf, nil
}

// Stats returns the number of SelectMove calls and how many failed.
func (s *Session) Stats() (decisions, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decisions, s.failures
}

// Close releases the network.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}

// fenDefaults fills the fields a short FEN leaves out: side to move,
// castling rights, en passant square, halfmove clock, fullmove number.
var fenDefaults = []string{"w", "-", "-", "0", "1"}

// newGame parses fen, padding a placement-only or truncated description
// with the default trailing fields.
func newGame(fen string) (*chess.Game, error) {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty position", data.ErrInvalidFEN)
	}
	if n := len(fields); n < 6 {
		fields = append(fields, fenDefaults[n-1:]...)
	}

	opt, err := chess.FEN(strings.Join(fields, " "))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", data.ErrInvalidFEN, err)
	}
	return chess.NewGame(opt), nil
}
