package decision

import (
	"sort"

	"github.com/notnil/chess"

	"github.com/thyrook/thinkmate/internal/data"
	"github.com/thyrook/thinkmate/internal/model"
)

// Candidate is a legal move with its joint origin/destination score.
type Candidate struct {
	Move  string  `json:"move"`
	From  int     `json:"from"`
	To    int     `json:"to"`
	Score float64 `json:"score"`
}

// ScoreMoves scores every legal move as P(from) * P(to), in enumeration
// order. Moves sharing a square pair (promotions) collapse into the first
// one.
func ScoreMoves(pf *model.ProbabilityField, moves []*chess.Move) []Candidate {
	seen := make(map[[2]int]bool, len(moves))
	candidates := make([]Candidate, 0, len(moves))

	for _, mv := range moves {
		from, to, err := data.EncodeMoveLabel(mv)
		if err != nil {
			continue
		}
		key := [2]int{from, to}
		if seen[key] {
			continue
		}
		seen[key] = true

		candidates = append(candidates, Candidate{
			Move:  data.MoveString(from, to),
			From:  from,
			To:    to,
			Score: pf.Score(from, to),
		})
	}
	return candidates
}

// Rank orders candidates by descending score. Equal scores go to the lower
// origin index, then the lower destination index, then enumeration order.
func Rank(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
}

// Best returns the top candidate under the Rank ordering without sorting.
func Best(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(c, best) {
			best = c
		}
	}
	return best, true
}

func better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.From != b.From {
		return a.From < b.From
	}
	return a.To < b.To
}
