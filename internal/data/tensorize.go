package data

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// TensorShape defines the shape of the board tensor: [12][8][8]
const (
	NumChannels = 12 // 6 piece types × 2 colors
	BoardSize   = 8
	NumSquares  = BoardSize * BoardSize
	PlaneSize   = NumChannels * NumSquares
)

// ErrInvalidFEN is returned (alongside an all-zero tensor) when a position
// description cannot be parsed.
var ErrInvalidFEN = errors.New("invalid FEN")

// Planes is an encoded position. Row 0 holds rank 8.
type Planes [NumChannels][BoardSize][BoardSize]float32

// PieceToChannel maps piece types to channel indices
// Channels 0-5: White pieces (Pawn, Knight, Bishop, Rook, Queen, King)
// Channels 6-11: Black pieces (Pawn, Knight, Bishop, Rook, Queen, King)
func PieceToChannel(piece chess.Piece) int {
	var baseChannel int
	switch piece.Type() {
	case chess.Pawn:
		baseChannel = 0
	case chess.Knight:
		baseChannel = 1
	case chess.Bishop:
		baseChannel = 2
	case chess.Rook:
		baseChannel = 3
	case chess.Queen:
		baseChannel = 4
	case chess.King:
		baseChannel = 5
	default:
		return -1
	}

	if piece.Color() == chess.Black {
		baseChannel += 6
	}

	return baseChannel
}

// SquareToCell returns the tensor (row, col) of a square index.
func SquareToCell(square int) (row, col int) {
	return BoardSize - 1 - square/BoardSize, square % BoardSize
}

// EncodeFEN converts a position description into planes. Only the piece
// placement field is consulted. A malformed description yields the zero
// tensor together with an error wrapping ErrInvalidFEN; the error is a
// diagnostic, the returned planes are always usable.
func EncodeFEN(fen string) (Planes, error) {
	board, err := ParsePlacement(fen)
	if err != nil {
		return Planes{}, err
	}
	return TensorizeBoard(board)
}

// ParsePlacement parses the piece placement field of a FEN. The remaining
// fields are ignored so that positions with missing or broken metadata
// still encode.
func ParsePlacement(fen string) (*chess.Board, error) {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty position", ErrInvalidFEN)
	}

	board := &chess.Board{}
	if err := board.UnmarshalText([]byte(fields[0])); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFEN, fields[0], err)
	}

	return board, nil
}

// TensorizeBoard converts a chess board to planes.
// Each channel represents one piece type and color
func TensorizeBoard(board *chess.Board) (Planes, error) {
	var tensor Planes

	if board == nil {
		return tensor, fmt.Errorf("board is nil")
	}

	for sq := 0; sq < NumSquares; sq++ {
		piece := board.Piece(chess.Square(sq))
		if piece == chess.NoPiece {
			continue
		}

		channel := PieceToChannel(piece)
		if channel < 0 {
			continue
		}
		row, col := SquareToCell(sq)
		tensor[channel][row][col] = 1.0
	}

	return tensor, ValidateTensor(tensor)
}

// ValidateTensor checks that values are binary and each square holds at
// most one piece.
func ValidateTensor(tensor Planes) error {
	for rank := 0; rank < BoardSize; rank++ {
		for file := 0; file < BoardSize; file++ {
			pieceCount := 0
			for channel := 0; channel < NumChannels; channel++ {
				if tensor[channel][rank][file] != 0.0 {
					if tensor[channel][rank][file] != 1.0 {
						return fmt.Errorf("invalid tensor value at [%d][%d][%d]: expected 0.0 or 1.0, got %f",
							channel, rank, file, tensor[channel][rank][file])
					}
					pieceCount++
				}
			}
			if pieceCount > 1 {
				return fmt.Errorf("multiple pieces at square [%d][%d]", rank, file)
			}
		}
	}

	return nil
}

// IsEmpty reports whether no channel is set. An empty tensor carries no
// information and must not be read as a real position.
func (p *Planes) IsEmpty() bool {
	for c := range p {
		for r := range p[c] {
			for f := range p[c][r] {
				if p[c][r][f] != 0 {
					return false
				}
			}
		}
	}
	return true
}

// Flatten writes the planes in channel-major order into dst, which must
// hold PlaneSize values.
func (p *Planes) Flatten(dst []float64) {
	idx := 0
	for c := 0; c < NumChannels; c++ {
		for r := 0; r < BoardSize; r++ {
			for f := 0; f < BoardSize; f++ {
				dst[idx] = float64(p[c][r][f])
				idx++
			}
		}
	}
}
