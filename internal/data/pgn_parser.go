package data

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/notnil/chess"
)

// PGNParser handles parsing of PGN files
type PGNParser struct {
	filepath string
}

// NewPGNParser creates a new PGN parser
func NewPGNParser(filepath string) *PGNParser {
	return &PGNParser{
		filepath: filepath,
	}
}

// ParsePGN parses a PGN file and returns a list of games
func (p *PGNParser) ParsePGN() ([]*chess.Game, error) {
	file, err := os.Open(p.filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PGN file: %w", err)
	}
	defer file.Close()

	return p.ParsePGNReader(file)
}

// ParsePGNReader parses PGN from an io.Reader
func (p *PGNParser) ParsePGNReader(reader io.Reader) ([]*chess.Game, error) {
	var games []*chess.Game

	scanner := chess.NewScanner(reader)
	for scanner.Scan() {
		game := scanner.Next()
		if game != nil {
			games = append(games, game)
		}
	}

	// EOF is expected at end of file, not an error
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("error parsing PGN: %w", err)
	}

	return games, nil
}

// ExtractRecords turns a game into one record per move: the position
// before the move and the move in UCI form.
func ExtractRecords(game *chess.Game) ([]Record, error) {
	if game == nil {
		return nil, fmt.Errorf("game is nil")
	}

	moves := game.Moves()
	positions := game.Positions()
	if len(positions) < len(moves) {
		return nil, fmt.Errorf("game has %d moves but %d positions", len(moves), len(positions))
	}

	records := make([]Record, 0, len(moves))
	notation := chess.UCINotation{}
	for i, move := range moves {
		pos := positions[i]
		records = append(records, Record{
			FEN:  pos.String(),
			Move: notation.Encode(pos, move),
		})
	}

	return records, nil
}

// ErrNotPGN is returned by ValidatePGN for files that hold no playable game.
var ErrNotPGN = errors.New("not a PGN file")

var pgnMarker = regexp.MustCompile(`(?m)^\s*\[[A-Za-z]+\s+"|\b1\.\s*[a-hKQRBNO]`)

// ValidatePGN reads the head of a PGN file and decodes its first game. It
// fails unless that game parses and has at least one move.
func ValidatePGN(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open PGN file: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	head, err := reader.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return fmt.Errorf("failed to read PGN file: %w", err)
	}
	if !pgnMarker.Match(head) {
		return fmt.Errorf("%w: %s has no tag pairs or move numbers", ErrNotPGN, path)
	}

	scanner := chess.NewScanner(reader)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil && err != io.EOF {
			return fmt.Errorf("%w: %v", ErrNotPGN, err)
		}
		return fmt.Errorf("%w: %s contains no games", ErrNotPGN, path)
	}
	game := scanner.Next()
	if game == nil || len(game.Moves()) == 0 {
		return fmt.Errorf("%w: first game in %s has no moves", ErrNotPGN, path)
	}
	return nil
}
