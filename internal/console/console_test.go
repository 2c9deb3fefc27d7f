package console

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/databroker/internal/broker"
	"github.com/dshills/databroker/internal/data"
)

// syncBuffer guards a bytes.Buffer shared with the dispatch goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func newBroker(t *testing.T) *broker.Broker {
	t.Helper()
	b := broker.New(broker.WithDispatchIdle(5 * time.Millisecond))
	require.NoError(t, b.Start())
	t.Cleanup(func() { _ = b.Stop() })
	return b
}

func TestConsole_SyncMessages(t *testing.T) {
	b := newBroker(t)
	var out syncBuffer
	c := New(&out, Options{Messages: true, Sync: true}, nil)
	c.Attach(b)

	b.EmitError("disk %d%% full", 93)
	b.EmitInfo("ready")
	b.EmitDebug("hidden")

	assert.Equal(t, "[error] disk 93% full\n[info] ready\n", out.String())
	assert.Equal(t, uint64(2), c.Lines())
}

func TestConsole_MinSeverity(t *testing.T) {
	b := newBroker(t)
	var out syncBuffer
	c := New(&out, Options{Messages: true, Sync: true, MinSeverity: broker.SeverityDebug}, nil)
	c.Attach(b)

	b.EmitDebug("verbose")
	assert.Equal(t, "[debug] verbose\n", out.String())
}

func TestConsole_AsyncMessages(t *testing.T) {
	b := newBroker(t)
	var out syncBuffer
	c := New(&out, Options{Messages: true}, nil)
	c.Attach(b)

	b.EmitWarning("low battery")
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[warning] low battery")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConsole_WatchPatterns(t *testing.T) {
	b := newBroker(t)
	var out syncBuffer
	c := New(&out, Options{Watch: []string{"robot/*", "clock"}}, nil)
	c.Attach(b)

	var pkg data.Package
	data.Add(&pkg, "x", int32(3))
	b.Publish("robot", "arm", pkg, nil, data.FlagRead)
	b.Publish("sim", "clock", pkg, nil, data.FlagRead)
	b.Publish("other", "thing", pkg, nil, data.FlagRead)

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "robot/arm {x=3}") && strings.Contains(s, "sim/clock {x=3}")
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotContains(t, out.String(), "other/thing")
}

func TestConsole_Detach(t *testing.T) {
	b := newBroker(t)
	var out syncBuffer
	c := New(&out, Options{Messages: true, Sync: true, Watch: []string{"robot/arm"}}, nil)
	c.Attach(b)

	assert.Positive(t, c.Detach(b))
	b.EmitError("after detach")
	assert.Empty(t, out.String())
}

func TestConsole_JSONLines(t *testing.T) {
	b := newBroker(t)
	var out syncBuffer
	c := New(&out, Options{Messages: true, Sync: true, JSON: true}, nil)
	c.Attach(b)
	b.RegisterSync(c, "robot", "arm", 0)

	b.EmitWarning("hot")
	var pkg data.Package
	data.Add(&pkg, "x", int32(3))
	data.Add(&pkg, "x", int32(4))
	data.Add(&pkg, "a.b", "dotted")
	data.Add(&pkg, "on", true)
	id := b.Publish("robot", "arm", pkg, nil, data.FlagRead)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		require.True(t, gjson.Valid(l), l)
	}

	msg := gjson.Parse(lines[0])
	assert.Equal(t, "warning", msg.Get("severity").String())
	assert.Equal(t, "hot", msg.Get("message").String())

	stream := gjson.Parse(lines[1])
	assert.Equal(t, "robot", stream.Get("group").String())
	assert.Equal(t, "arm", stream.Get("name").String())
	assert.Equal(t, uint64(id), stream.Get("id").Uint())
	assert.Equal(t, int64(3), stream.Get("items.x").Int(), "first item wins")
	assert.Equal(t, "dotted", stream.Get(`items.a\.b`).String())
	assert.True(t, stream.Get("items.on").Bool())
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "plain", escapePath("plain"))
	assert.Equal(t, `a\.b\*c\?`, escapePath("a.b*c?"))
}

func TestSplitPattern(t *testing.T) {
	tests := []struct {
		in, group, name string
	}{
		{"robot/arm", "robot", "arm"},
		{"robot/*", "robot", "*"},
		{"a/b/c", "a", "b/c"},
		{"arm", "*", "arm"},
	}
	for _, tt := range tests {
		g, n := splitPattern(tt.in)
		assert.Equal(t, tt.group, g, tt.in)
		assert.Equal(t, tt.name, n, tt.in)
	}
}
