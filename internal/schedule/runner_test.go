package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobMsg struct {
	data   []byte
	acked  bool
	naked  bool
	termed bool
}

func (m *fakeJobMsg) Data() []byte { return m.data }
func (m *fakeJobMsg) Ack() error   { m.acked = true; return nil }
func (m *fakeJobMsg) Nak() error   { m.naked = true; return nil }
func (m *fakeJobMsg) Term() error  { m.termed = true; return nil }

func jobMsg(t *testing.T, kind string, payload interface{}) *fakeJobMsg {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(Job{ID: "job-1", Kind: kind, Payload: raw})
	require.NoError(t, err)
	return &fakeJobMsg{data: data}
}

func testRunner() *Runner {
	return &Runner{
		cfg:      DefaultConfig(),
		handlers: make(map[string]HandlerFunc),
		logger:   slog.Default(),
	}
}

func TestDispatch_InvokesHandlerAndAcks(t *testing.T) {
	r := testRunner()

	var got BackfillPayload
	r.Handle(JobBackfill, func(ctx context.Context, payload json.RawMessage) error {
		return json.Unmarshal(payload, &got)
	})

	msg := jobMsg(t, JobBackfill, BackfillPayload{Index: "activities"})
	r.dispatch(context.Background(), msg)

	assert.Equal(t, "activities", got.Index)
	assert.True(t, msg.acked)
}

func TestDispatch_HandlerErrorNaks(t *testing.T) {
	r := testRunner()
	r.Handle(JobBackfill, func(ctx context.Context, payload json.RawMessage) error {
		return fmt.Errorf("store down")
	})

	msg := jobMsg(t, JobBackfill, BackfillPayload{Index: "activities"})
	r.dispatch(context.Background(), msg)

	assert.True(t, msg.naked)
	assert.False(t, msg.acked)
}

func TestDispatch_RequeueNaks(t *testing.T) {
	r := testRunner()
	r.Handle(JobCollectionRefresh, func(ctx context.Context, payload json.RawMessage) error {
		return ErrRequeue
	})

	msg := jobMsg(t, JobCollectionRefresh, CollectionRefreshPayload{CollectionID: "0xpunks"})
	r.dispatch(context.Background(), msg)

	assert.True(t, msg.naked)
	assert.False(t, msg.acked)
	assert.False(t, msg.termed)
}

func TestDispatch_UnknownKindTerminated(t *testing.T) {
	r := testRunner()

	msg := jobMsg(t, "mystery", struct{}{})
	r.dispatch(context.Background(), msg)

	assert.True(t, msg.termed)
	assert.False(t, msg.naked)
}

func TestDispatch_UndecodableTerminated(t *testing.T) {
	r := testRunner()

	msg := &fakeJobMsg{data: []byte("not json")}
	r.dispatch(context.Background(), msg)

	assert.True(t, msg.termed)
}
