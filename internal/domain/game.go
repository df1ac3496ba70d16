package domain

import "time"

// GameRecord is a finished game as stored by the record repository. ID is the
// game id, which changes on every INIT of a session.
type GameRecord struct {
	ID         string
	SessionID  string
	StartFEN   string
	FinalFEN   string
	MovesUCI   []string
	MovesSAN   []string
	PGN        string
	Result     string
	Method     string
	Difficulty int
	StartedAt  time.Time
	EndedAt    time.Time
	Duration   time.Duration
}

// SessionSnapshot is enough to rebuild a session: StartFEN plus Moves must
// replay to FEN.
type SessionSnapshot struct {
	SessionID  string    `json:"session_id"`
	GameID     string    `json:"game_id"`
	StartFEN   string    `json:"start_fen"`
	FEN        string    `json:"fen"`
	Moves      []string  `json:"moves"`
	Difficulty int       `json:"difficulty"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
