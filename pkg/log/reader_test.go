package log

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTrace(t *testing.T, events ...Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.alog")
	l, err := NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		l.Log(e)
	}
	require.NoError(t, l.Close())
	return path
}

// session is one connection's worth of trace: connect, subscribe, an
// enrollment exchange and the resulting state change.
func session(start time.Time) []Event {
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }
	resp := NewMessageEvent("adu/oto/dev-1/s", "enr_resp", "corr-1", 1, []byte(`{"isEnrolled":true,"scopeId":"scope-42"}`))
	req := NewMessageEvent("adu/oto/dev-1/a", "enr_req", "corr-1", 1, []byte("{}"))
	req.ResponseTopic = "adu/oto/dev-1/s"

	return []Event{
		{Timestamp: at(0), ConnectionID: "c1", Direction: DirectionOut, Layer: LayerTransport, Category: CategoryControl,
			DeviceID: "dev-1", ControlMsg: &ControlMsgEvent{Type: ControlMsgConnect}},
		{Timestamp: at(10), ConnectionID: "c1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryControl,
			DeviceID: "dev-1", ControlMsg: &ControlMsgEvent{Type: ControlMsgSuback, Topics: []string{"adu/oto/dev-1/s"}}},
		{Timestamp: at(20), ConnectionID: "c1", Direction: DirectionOut, Layer: LayerChannel, Category: CategoryMessage,
			DeviceID: "dev-1", Message: req},
		{Timestamp: at(30), ConnectionID: "c1", Direction: DirectionIn, Layer: LayerChannel, Category: CategoryMessage,
			DeviceID: "dev-1", Message: resp},
		{Timestamp: at(40), ConnectionID: "c1", Layer: LayerOperation, Category: CategoryState,
			DeviceID: "dev-1", ScopeID: "scope-42",
			StateChange: &StateChangeEvent{Entity: StateEntityEnrollment, OldState: "REQUEST_SENT", NewState: "ENROLLED"}},
	}
}

func TestReaderNext(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	path := writeTrace(t, session(start)...)

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, ControlMsgConnect, first.ControlMsg.Type)
	assert.True(t, first.Timestamp.Equal(start))

	n := 1
	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 5, n)
}

func TestReaderEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.alog")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderTruncatedRecord(t *testing.T) {
	path := writeTrace(t, session(time.Now())[:2]...)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-3))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.NoError(t, err, "first record is intact")

	_, err = r.Next()
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF), "truncation must not look like a clean end: %v", err)
}

func TestReaderEachStopsOnError(t *testing.T) {
	path := writeTrace(t, session(time.Now())...)
	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	stop := errors.New("stop")
	seen := 0
	err = r.Each(func(Event) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, seen)
}

func TestFilteredReader(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	events := session(start)
	other := session(start.Add(time.Hour))
	for i := range other {
		other[i].ConnectionID = "c2"
	}
	path := writeTrace(t, append(events, other...)...)

	channel, control, in := LayerChannel, CategoryControl, DirectionIn
	from, to := start.Add(10*time.Millisecond), start.Add(30*time.Millisecond)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"All", Filter{}, 10},
		{"Connection", Filter{ConnectionID: "c2"}, 5},
		{"Layer", Filter{Layer: &channel}, 4},
		{"Category", Filter{Category: &control}, 4},
		{"Direction", Filter{Direction: &in}, 6},
		{"TimeRangeHalfOpen", Filter{TimeStart: &from, TimeEnd: &to}, 2},
		{"Scope", Filter{ScopeID: "scope-42"}, 2},
		{"Topic", Filter{Topic: "adu/oto/dev-1/s"}, 2},
		{"MessageType", Filter{MessageType: "enr_req", ConnectionID: "c1"}, 1},
		{"Correlation", Filter{CorrelationID: "corr-1"}, 4},
		{"CorrelationSkipsNonMessages", Filter{CorrelationID: "corr-1", Category: &control}, 0},
		{"NoMatch", Filter{DeviceID: "dev-2"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			require.NoError(t, err)
			defer r.Close()

			n := 0
			require.NoError(t, r.Each(func(e Event) error {
				assert.True(t, tt.filter.Match(e))
				n++
				return nil
			}))
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestNewReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "nope.alog"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
