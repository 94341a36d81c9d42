package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/cydxin/pulse-sdk/message"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// recorder 记录收到的下行帧
type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (r *recorder) Send(frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return false
	}
	r.frames = append(r.frames, frame)
	return true
}

func (r *recorder) events(t *testing.T) []message.Envelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]message.Envelope, 0, len(r.frames))
	for _, f := range r.frames {
		var env message.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

func (r *recorder) count(t *testing.T, eventType string) int {
	n := 0
	for _, env := range r.events(t) {
		if env.Type == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	conns   *Registry
	router  *Router
	tracker *Tracker
}

func newFixture(t *testing.T) *fixture {
	log := zaptest.NewLogger(t)
	conns := NewRegistry()
	router := NewRouter(conns, log)
	return &fixture{conns: conns, router: router, tracker: NewTracker(router, log)}
}

func (f *fixture) open(id string) *recorder {
	rec := &recorder{}
	f.conns.Add(NewConn(id, rec))
	return rec
}
