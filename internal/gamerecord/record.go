// Package gamerecord stores finished engine games.
package gamerecord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-engine/internal/chess/rules"
	"github.com/park285/cheese-engine/internal/domain"
)

var ErrDuplicateGame = errors.New("game already recorded")

const maxRecentLimit = 100

type Repository interface {
	// Insert stores a record. A second record with the same ID fails with
	// ErrDuplicateGame.
	Insert(ctx context.Context, rec *domain.GameRecord) error
	Recent(ctx context.Context, limit int) ([]*domain.GameRecord, error)
}

// Result tokens.
const (
	ResultWhite = "white"
	ResultBlack = "black"
	ResultDraw  = "draw"
)

// Build turns a finished snapshot into a record with SAN and PGN filled in.
// winner is "w" or "b" for checkmate and ignored otherwise.
func Build(snap domain.SessionSnapshot, winner string, endedAt time.Time) (*domain.GameRecord, error) {
	san, err := rules.SAN(snap.StartFEN, snap.Moves)
	if err != nil {
		return nil, fmt.Errorf("build san: %w", err)
	}
	result := ResultDraw
	if snap.Status == "checkmate" {
		switch winner {
		case "w":
			result = ResultWhite
		case "b":
			result = ResultBlack
		default:
			return nil, fmt.Errorf("checkmate without winner")
		}
	}
	started := snap.StartedAt
	if started.IsZero() {
		started = endedAt
	}
	id := snap.GameID
	if id == "" {
		id = uuid.NewString()
	}
	rec := &domain.GameRecord{
		ID:         id,
		SessionID:  snap.SessionID,
		StartFEN:   snap.StartFEN,
		FinalFEN:   snap.FEN,
		MovesUCI:   append([]string(nil), snap.Moves...),
		MovesSAN:   san,
		Result:     result,
		Method:     snap.Status,
		Difficulty: snap.Difficulty,
		StartedAt:  started,
		EndedAt:    endedAt,
		Duration:   endedAt.Sub(started),
	}
	if rec.Duration < 0 {
		rec.Duration = 0
	}
	rec.PGN = BuildPGN(rec)
	return rec, nil
}

func pgnResult(result string) string {
	switch result {
	case ResultWhite:
		return "1-0"
	case ResultBlack:
		return "0-1"
	case ResultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders headers and numbered SAN moves. Games that start from a
// custom position carry SetUp/FEN headers and may start with Black to move.
func BuildPGN(rec *domain.GameRecord) string {
	if rec == nil {
		return ""
	}
	date := rec.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	res := pgnResult(rec.Result)

	var b strings.Builder
	b.WriteString("[Event \"Engine game\"]\n")
	b.WriteString("[Site \"cheese-engine\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	b.WriteString("[White \"?\"]\n[Black \"?\"]\n")
	fmt.Fprintf(&b, "[Result \"%s\"]\n", res)
	custom := rec.StartFEN != "" && rec.StartFEN != rules.StartFEN
	if custom {
		fmt.Fprintf(&b, "[SetUp \"1\"]\n[FEN \"%s\"]\n", rec.StartFEN)
	}
	if rec.Method != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", rec.Method)
	}
	b.WriteString("\n")

	num, blackFirst := startNumbering(rec.StartFEN)
	for i, san := range rec.MovesSAN {
		white := (i%2 == 0) != blackFirst
		switch {
		case white:
			fmt.Fprintf(&b, "%d. %s ", num, san)
		case i == 0:
			fmt.Fprintf(&b, "%d... %s ", num, san)
		default:
			fmt.Fprintf(&b, "%s ", san)
		}
		if !white {
			num++
		}
	}
	b.WriteString(res)
	return b.String()
}

// startNumbering reads the fullmove number and side to move from a FEN.
func startNumbering(fen string) (int, bool) {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 1, false
	}
	n := 0
	if _, err := fmt.Sscanf(fields[5], "%d", &n); err != nil || n < 1 {
		n = 1
	}
	return n, fields[1] == "b"
}
