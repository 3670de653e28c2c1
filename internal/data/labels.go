package data

import (
	"errors"
	"fmt"

	"github.com/notnil/chess"
)

// ErrInvalidMove is returned when a move string cannot be mapped to a pair
// of square indices.
var ErrInvalidMove = errors.New("invalid move")

// squareIndex maps algebraic square names to indices using the rules
// engine's own naming, so labels and legal moves always agree.
var squareIndex = func() map[string]int {
	m := make(map[string]int, NumSquares)
	for i := 0; i < NumSquares; i++ {
		m[chess.Square(i).String()] = i
	}
	return m
}()

// ParseSquare returns the 0-63 index of an algebraic square name ("e4").
func ParseSquare(name string) (int, error) {
	idx, ok := squareIndex[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown square %q", ErrInvalidMove, name)
	}
	return idx, nil
}

// SquareName returns the algebraic name of a square index.
func SquareName(idx int) string {
	return chess.Square(idx).String()
}

// ParseMoveLabel splits a move string ("e2e4", "e7e8q") into origin and
// destination square indices. Characters past the fourth (promotion) are
// ignored.
func ParseMoveLabel(move string) (from, to int, err error) {
	if len(move) < 4 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidMove, move)
	}

	if from, err = ParseSquare(move[:2]); err != nil {
		return 0, 0, err
	}
	if to, err = ParseSquare(move[2:4]); err != nil {
		return 0, 0, err
	}

	return from, to, nil
}

// EncodeMoveLabel converts a chess move to a pair of square indices (from, to)
// Returns (fromSquare, toSquare) where each is in range [0, 63]
func EncodeMoveLabel(move *chess.Move) (int, int, error) {
	if move == nil {
		return 0, 0, fmt.Errorf("move is nil")
	}

	fromSquare := int(move.S1())
	toSquare := int(move.S2())

	if fromSquare < 0 || fromSquare >= NumSquares {
		return 0, 0, fmt.Errorf("invalid from square: %d", fromSquare)
	}

	if toSquare < 0 || toSquare >= NumSquares {
		return 0, 0, fmt.Errorf("invalid to square: %d", toSquare)
	}

	return fromSquare, toSquare, nil
}

// MoveString renders an origin/destination pair in 4-character form.
// Promotion pieces are not representable and never appear.
func MoveString(from, to int) string {
	return SquareName(from) + SquareName(to)
}
