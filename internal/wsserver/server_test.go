package wsserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	corechess "github.com/park285/cheese-engine/internal/chess"
	"github.com/park285/cheese-engine/internal/chess/rules"
	"github.com/park285/cheese-engine/internal/gamerecord"
	"github.com/park285/cheese-engine/internal/sessionstore"
	"github.com/park285/cheese-engine/pkg/enginedto"
	"github.com/redis/go-redis/v9"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func strp(s string) *string { return &s }

type fixture struct {
	srv     *httptest.Server
	store   sessionstore.Store
	records gamerecord.Repository
}

func newFixture(t *testing.T, store sessionstore.Store) *fixture {
	t.Helper()
	return newFixtureWith(t, store, Config{DefaultDifficulty: 1})
}

func newFixtureWith(t *testing.T, store sessionstore.Store, cfg Config) *fixture {
	t.Helper()
	records := gamerecord.NewMemoryRepository()
	s := New(rules.New(), corechess.NewSearcher(nil), store, records, nil, cfg, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, records: records}
}

func (f *fixture) dial(t *testing.T, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws" + query
	return websocket.Dial(ctx, url, nil)
}

func (f *fixture) mustDial(t *testing.T, query string) (*websocket.Conn, string) {
	t.Helper()
	conn, resp, err := f.dial(t, query)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, resp.Header.Get(SessionHeader)
}

func roundTrip(t *testing.T, conn *websocket.Conn, req enginedto.Request) enginedto.Response {
	t.Helper()
	send(t, conn, req)
	return receive(t, conn)
}

func send(t *testing.T, conn *websocket.Conn, req enginedto.Request) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) enginedto.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var resp enginedto.Response
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp
}

func TestIllegalMoveOverWebsocket(t *testing.T) {
	f := newFixture(t, sessionstore.NewMemoryStore(time.Minute))
	conn, id := f.mustDial(t, "")
	if id == "" {
		t.Fatalf("missing %s header", SessionHeader)
	}
	send(t, conn, enginedto.Request{Type: enginedto.TypeInit})
	resp := roundTrip(t, conn, enginedto.Request{Type: enginedto.TypePlayerMove, From: "e2", To: "e5"})
	if resp.Type != enginedto.TypeError || resp.Message != "Illegal move" || !reflect.DeepEqual(resp.LegalMoves, []string{"e3", "e4"}) {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	f := newFixture(t, nil)
	conn, _ := f.mustDial(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	send(t, conn, enginedto.Request{Type: "SOMETHING_ELSE"})
	resp := roundTrip(t, conn, enginedto.Request{Type: enginedto.TypeGetLegalMoves, Square: "e2"})
	if resp.Type != enginedto.TypeLegalMoves || resp.Square != "e2" {
		t.Fatalf("connection should survive bad input, got %+v", resp)
	}
}

func TestCheckmateIsRecorded(t *testing.T) {
	store := sessionstore.NewMemoryStore(time.Minute)
	f := newFixture(t, store)
	conn, id := f.mustDial(t, "")
	send(t, conn, enginedto.Request{Type: enginedto.TypeInit, FEN: strp("6k1/5Q2/7K/8/8/8/8/8 w - - 0 1")})
	resp := roundTrip(t, conn, enginedto.Request{Type: enginedto.TypePlayerMove, From: "f7", To: "g7"})
	if resp.Type != enginedto.TypeCheckmate || resp.Winner != "w" {
		t.Fatalf("unexpected response %+v", resp)
	}

	games, err := f.records.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(games) != 1 || games[0].SessionID != id || games[0].Result != gamerecord.ResultWhite {
		t.Fatalf("unexpected records %+v", games)
	}
	if !reflect.DeepEqual(games[0].MovesUCI, []string{"f7g7"}) {
		t.Fatalf("moves = %v", games[0].MovesUCI)
	}

	// a second request on the finished game must not record it again
	roundTrip(t, conn, enginedto.Request{Type: enginedto.TypePlayerMove, From: "h6", To: "h5"})
	games, _ = f.records.Recent(context.Background(), 10)
	if len(games) != 1 {
		t.Fatalf("game recorded %d times", len(games))
	}
	snap, err := store.Load(context.Background(), id)
	if err != nil || snap == nil || snap.Status != "checkmate" {
		t.Fatalf("snapshot = %+v, %v", snap, err)
	}
}

func TestRequestedDifficultyIsCapped(t *testing.T) {
	store := sessionstore.NewMemoryStore(time.Minute)
	f := newFixtureWith(t, store, Config{DefaultDifficulty: 1, MaxDifficulty: 2})
	conn, id := f.mustDial(t, "")
	send(t, conn, enginedto.Request{Type: enginedto.TypeInit,
		FEN: strp("r1bqkb1r/pppp1ppp/2n2n2/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 4")})
	depth := 99
	resp := roundTrip(t, conn, enginedto.Request{Type: enginedto.TypeRequestAIMove, Difficulty: &depth})
	if resp.Type != enginedto.TypeAIMove {
		t.Fatalf("unexpected response %+v", resp)
	}
	snap, err := store.Load(context.Background(), id)
	if err != nil || snap == nil || snap.Difficulty != 2 {
		t.Fatalf("snapshot = %+v, %v", snap, err)
	}
}

func TestResumeFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	f := newFixture(t, sessionstore.NewRedisStore(rdb, time.Minute))

	conn, id := f.mustDial(t, "")
	send(t, conn, enginedto.Request{Type: enginedto.TypeInit})
	first := roundTrip(t, conn, enginedto.Request{Type: enginedto.TypePlayerMove, From: "e2", To: "e4"})
	if first.Type != enginedto.TypeAIMove {
		t.Fatalf("unexpected response %+v", first)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")

	again, resumed := f.mustDial(t, "?session="+id)
	if resumed != id {
		t.Fatalf("resumed session id %q, want %q", resumed, id)
	}
	resp := roundTrip(t, again, enginedto.Request{Type: enginedto.TypeGetLegalMoves, Square: "e4"})
	if !reflect.DeepEqual(resp.Moves, []string{"e5"}) {
		t.Fatalf("resumed position lost the e4 pawn: %+v", resp)
	}
	resp = roundTrip(t, again, enginedto.Request{Type: enginedto.TypeGetLegalMoves, Square: "e2"})
	if resp.Type != enginedto.TypeLegalMoves || len(resp.Moves) != 0 {
		t.Fatalf("e2 should be empty after resume: %+v", resp)
	}
}

func TestResumeUnknownSession(t *testing.T) {
	f := newFixture(t, sessionstore.NewMemoryStore(time.Minute))
	_, resp, err := f.dial(t, "?session=missing")
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := http.Get(f.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
