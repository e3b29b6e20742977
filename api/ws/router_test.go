package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/kasuganosora/brotmon/game/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func makePacket(t *testing.T, seq uint64, msgType string, payload any) []byte {
	t.Helper()
	p, err := json.Marshal(payload)
	require.NoError(t, err)
	b, err := json.Marshal(Packet{Seq: seq, Type: msgType, Payload: p})
	require.NoError(t, err)
	return b
}

// nextPacket pops one queued outbound packet.
func nextPacket(t *testing.T, s *Session) Packet {
	t.Helper()
	select {
	case raw := <-s.SendChan:
		var pkt Packet
		require.NoError(t, json.Unmarshal(raw, &pkt))
		return pkt
	default:
		t.Fatal("no packet queued")
		return Packet{}
	}
}

func counting(n *int) HandlerFunc {
	return func(context.Context, *Session, json.RawMessage) error {
		*n++
		return nil
	}
}

func TestRouter_Dispatch(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var got map[string]string
	r.On("data", func(_ context.Context, _ *Session, raw json.RawMessage) error {
		return json.Unmarshal(raw, &got)
	})
	s := newSession(1, nil)

	r.Dispatch(s, makePacket(t, 1, "data", map[string]string{"key": "value"}))
	assert.Equal(t, "value", got["key"])

	// Malformed and unknown packets are dropped without a reply.
	r.Dispatch(s, []byte("not json"))
	r.Dispatch(s, makePacket(t, 2, "unknown", nil))
	assert.Empty(t, s.SendChan)
}

func TestRouter_AntiReplay(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var calls int
	r.On("msg", counting(&calls))
	s := newSession(1, nil)

	for _, seq := range []uint64{5, 5, 3, 6, 100} {
		r.Dispatch(s, makePacket(t, seq, "msg", nil))
	}
	assert.Equal(t, 3, calls, "5, 6 and 100 pass; the repeat and the older seq do not")
	assert.Equal(t, uint64(100), s.LastSeq)

	r.Dispatch(s, makePacket(t, 0, "msg", nil))
	r.Dispatch(s, makePacket(t, 0, "msg", nil))
	assert.Equal(t, 5, calls, "seq 0 is not tracked")
}

func TestRouter_ReplaceHandler(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var first, second int
	r.On("msg", counting(&first))
	r.On("msg", counting(&second))
	r.Dispatch(newSession(1, nil), makePacket(t, 1, "msg", nil))
	assert.Zero(t, first)
	assert.Equal(t, 1, second)
}

func TestRouter_TraceIDPerDispatch(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var ids []string
	r.On("trace", func(ctx context.Context, _ *Session, _ json.RawMessage) error {
		ids = append(ids, TraceIDFromCtx(ctx))
		return nil
	})
	s := newSession(1, nil)
	r.Dispatch(s, makePacket(t, 1, "trace", nil))
	r.Dispatch(s, makePacket(t, 2, "trace", nil))
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
	assert.Empty(t, TraceIDFromCtx(context.Background()))
}

func TestRouter_HandlerErrorReplies(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"bad payload", fmt.Errorf("%w: battle_id is required", ErrBadPayload), http.StatusBadRequest, "ws: bad payload: battle_id is required"},
		{"service error", match.ErrBattleNotFound, http.StatusNotFound, match.ErrBattleNotFound.Error()},
		{"wrapped service error", fmt.Errorf("load: %w", match.ErrInvalidBattleState), http.StatusConflict, "load: " + match.ErrInvalidBattleState.Error()},
		{"internal", assert.AnError, http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRouter(zap.NewNop())
			r.On("boom", func(context.Context, *Session, json.RawMessage) error { return tc.err })
			s := newSession(1, nil)
			r.Dispatch(s, makePacket(t, 1, "boom", nil))

			pkt := nextPacket(t, s)
			assert.Equal(t, "error", pkt.Type)
			var ep errorPayload
			require.NoError(t, json.Unmarshal(pkt.Payload, &ep))
			assert.Equal(t, "boom", ep.Type)
			assert.Equal(t, tc.code, ep.Code)
			assert.Equal(t, tc.message, ep.Message)
			assert.Equal(t, s.TraceID, ep.TraceID)
		})
	}
}
