package enginedto

import (
	"encoding/json"
	"time"
)

// Request kinds.
const (
	TypeInit          = "INIT"
	TypeGetLegalMoves = "GET_LEGAL_MOVES"
	TypePlayerMove    = "PLAYER_MOVE"
	TypeRequestAIMove = "REQUEST_AI_MOVE"
)

// Response kinds.
const (
	TypeAIMove     = "AI_MOVE"
	TypeLegalMoves = "LEGAL_MOVES"
	TypeCheckmate  = "CHECKMATE"
	TypeStalemate  = "STALEMATE"
	TypeError      = "ERROR"
)

// SessionHeader carries the session id on the websocket upgrade response.
// Clients pass it back as ?session=<id> to resume.
const SessionHeader = "X-Session-Id"

// Status values carried by AI_MOVE when the engine's reply ends the game.
const (
	StatusActive    = "active"
	StatusCheckmate = "checkmate"
	StatusStalemate = "stalemate"
)

type Request struct {
	Type       string  `json:"type"`
	FEN        *string `json:"fen,omitempty"`
	Difficulty *int    `json:"difficulty,omitempty"`
	Square     string  `json:"square,omitempty"`
	From       string  `json:"from,omitempty"`
	To         string  `json:"to,omitempty"`
}

// DifficultyOr returns the requested difficulty, or 0 when absent.
func (r Request) DifficultyOr() int {
	if r.Difficulty == nil {
		return 0
	}
	return *r.Difficulty
}

// FENOr returns the requested FEN, or "" when absent.
func (r Request) FENOr() string {
	if r.FEN == nil {
		return ""
	}
	return *r.FEN
}

type Response struct {
	Type       string   `json:"type"`
	From       string   `json:"from,omitempty"`
	To         string   `json:"to,omitempty"`
	Promotion  string   `json:"promotion,omitempty"`
	Square     string   `json:"square,omitempty"`
	Moves      []string `json:"moves,omitempty"`
	Winner     string   `json:"winner,omitempty"`
	Status     string   `json:"status,omitempty"`
	Message    string   `json:"message,omitempty"`
	LegalMoves []string `json:"legalMoves,omitempty"`
	FEN        string   `json:"fen,omitempty"`
}

// BestMoveRequest is the analysis API body.
type BestMoveRequest struct {
	FEN   string `json:"fen"`
	Depth int    `json:"depth"`
}

type BestMoveResponse struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Score     int    `json:"score"`
	Nodes     int    `json:"nodes"`
}

// GameSummary is one finished game in the GET /v1/games listing.
type GameSummary struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Result     string    `json:"result"`
	Method     string    `json:"method"`
	Difficulty int       `json:"difficulty"`
	Moves      []string  `json:"moves"`
	PGN        string    `json:"pgn"`
	EndedAt    time.Time `json:"ended_at"`
}

type GameList struct {
	Games []GameSummary `json:"games"`
}

type ErrorBody struct {
	Error string `json:"error"`
}

// MarshalJSON keeps "moves" on LEGAL_MOVES even when the list is empty.
func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	if r.Type != TypeLegalMoves {
		return json.Marshal(plain(r))
	}
	moves := r.Moves
	if moves == nil {
		moves = []string{}
	}
	return json.Marshal(struct {
		plain
		Moves []string `json:"moves"`
	}{plain(r), moves})
}
