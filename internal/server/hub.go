package server

import (
	"sync"

	"github.com/dyike/tradeflow/internal/app"
	"github.com/dyike/tradeflow/internal/workflow"
)

// subscriberBuffer bounds how far a websocket client may lag before it is
// dropped. The run itself never waits on a client.
const subscriberBuffer = 64

// liveRun fans the chunks of one session out to any number of clients.
// Late clients get the history first.
type liveRun struct {
	sess *app.Session

	mu      sync.Mutex
	history []workflow.Chunk
	subs    map[chan workflow.Chunk]struct{}
	done    chan struct{}
	result  workflow.Result
}

func newLiveRun(sess *app.Session) *liveRun {
	return &liveRun{
		sess: sess,
		subs: make(map[chan workflow.Chunk]struct{}),
		done: make(chan struct{}),
	}
}

func (l *liveRun) publish(c workflow.Chunk) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, c)
	for ch := range l.subs {
		select {
		case ch <- c:
		default:
			delete(l.subs, ch)
			close(ch)
		}
	}
}

func (l *liveRun) finish(res workflow.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.result = res
	for ch := range l.subs {
		close(ch)
	}
	l.subs = nil
	close(l.done)
}

// subscribe returns the chunks so far and, unless the run has ended, a
// channel of the ones to come. The channel is closed when the run ends or
// the client falls behind.
func (l *liveRun) subscribe() ([]workflow.Chunk, chan workflow.Chunk) {
	l.mu.Lock()
	defer l.mu.Unlock()
	history := append([]workflow.Chunk(nil), l.history...)
	select {
	case <-l.done:
		return history, nil
	default:
	}
	ch := make(chan workflow.Chunk, subscriberBuffer)
	l.subs[ch] = struct{}{}
	return history, ch
}

func (l *liveRun) unsubscribe(ch chan workflow.Chunk) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.subs[ch]; ok {
		delete(l.subs, ch)
		close(ch)
	}
}

// finished reports whether the run ended and, if so, its result.
func (l *liveRun) finished() (workflow.Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
		return l.result, true
	default:
		return workflow.Result{}, false
	}
}

// hub tracks the runs started by this server that are still streaming.
type hub struct {
	mu   sync.Mutex
	runs map[string]*liveRun
}

func newHub() *hub {
	return &hub{runs: make(map[string]*liveRun)}
}

func (h *hub) add(id string, l *liveRun) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs[id] = l
}

func (h *hub) get(id string) (*liveRun, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.runs[id]
	return l, ok
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.runs, id)
}

func (h *hub) cancelAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, l := range h.runs {
		l.sess.Run.Cancel()
	}
}
