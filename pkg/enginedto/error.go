package enginedto

// 오류 분류 코드. 클라이언트에는 Message만 나가고 코드는 로그와 호출자 분기에 씀.
const (
	CodeIllegalMove    = "illegal_move"
	CodeGameOver       = "game_over"
	CodeNotInitialized = "not_initialized"
	CodeInvalidFEN     = "invalid_fen"
	CodeNoLegalMoves   = "no_legal_moves"
	CodeInternal       = "internal"
)

// DomainError is a session failure in wire terms. LegalMoves is only set for
// CodeIllegalMove.
type DomainError struct {
	Code       string
	Message    string
	LegalMoves []string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Response renders the error as an ERROR frame.
func (e *DomainError) Response() *Response {
	return &Response{Type: TypeError, Message: e.Message, LegalMoves: e.LegalMoves}
}
