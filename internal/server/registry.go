package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/google/uuid"
)

// ConnInfo is a point-in-time view of one live connection.
type ConnInfo struct {
	ID       string
	Seq      uint64
	Remote   string
	Since    time.Time
	Requests int64
}

// Entry tracks one live connection.
type Entry struct {
	id       uuid.UUID
	seq      uint64
	remote   string
	since    time.Time
	conn     net.Conn
	requests atomic.Int64
}

func (e *Entry) ID() string { return e.id.String() }

// Served counts one completed request.
func (e *Entry) Served() { e.requests.Add(1) }

// Registry holds live connections ordered by accept sequence.
type Registry struct {
	mu     sync.Mutex
	seq    uint64
	conns  *treemap.Map
	served int64
	closed bool
	now    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{conns: treemap.NewWith(utils.UInt64Comparator), now: time.Now}
}

// Add registers c. It returns nil once the registry has been closed; the
// caller then owns closing c.
func (r *Registry) Add(c net.Conn) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.seq++
	e := &Entry{id: uuid.New(), seq: r.seq, since: r.now(), conn: c}
	if c != nil && c.RemoteAddr() != nil {
		e.remote = c.RemoteAddr().String()
	}
	r.conns.Put(e.seq, e)
	return e
}

func (r *Registry) Remove(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns.Get(e.seq); ok {
		r.conns.Remove(e.seq)
		r.served += e.requests.Load()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns.Size()
}

// Accepted is the number of connections ever registered.
func (r *Registry) Accepted() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Served is the number of completed requests across all connections,
// live and closed.
func (r *Registry) Served() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.served
	for _, v := range r.conns.Values() {
		n += v.(*Entry).requests.Load()
	}
	return n
}

// Snapshot lists live connections in accept order.
func (r *Registry) Snapshot() []ConnInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ConnInfo, 0, r.conns.Size())
	for _, v := range r.conns.Values() {
		e := v.(*Entry)
		out = append(out, ConnInfo{
			ID:       e.ID(),
			Seq:      e.seq,
			Remote:   e.remote,
			Since:    e.since,
			Requests: e.requests.Load(),
		})
	}
	return out
}

// CloseAll closes every live connection and rejects further Adds.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.conns.Each(func(_ interface{}, v interface{}) {
		if c := v.(*Entry).conn; c != nil {
			_ = c.Close()
		}
	})
}
