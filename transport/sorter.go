package transport

import "sync"

// Sorter assigns outbound request ids (monotonically increasing, starting
// at 1 — id 0 is reserved for server-originated events) and matches inbound
// responses back to the waiter that sent the matching request. Its pending
// table is guarded by a mutex: Send registers and cancels waiters directly
// from the caller's goroutine while the connector's frame-routing goroutine
// dispatches responses.
type Sorter struct {
	mu      sync.Mutex
	nextID  uint32
	pending map[uint32]chan []byte
}

// NewSorter builds an empty Sorter.
func NewSorter() *Sorter {
	return &Sorter{nextID: 1, pending: make(map[uint32]chan []byte)}
}

// Register allocates the next id and returns it along with the one-shot
// channel that will receive the matching response payload.
func (s *Sorter) Register() (uint32, chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan []byte, 1)
	s.pending[id] = ch
	return id, ch
}

// Dispatch attempts to match an inbound payload with id against a pending
// waker. It reports whether the payload was claimed; if true, the caller
// must NOT also publish the payload on the event stream (§4.3: "completes
// that waker and does NOT raise an event"). id==0 is never claimed.
func (s *Sorter) Dispatch(id uint32, payload []byte) bool {
	if id == 0 {
		return false
	}
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	ch <- payload
	close(ch)
	return true
}

// Cancel releases id's waiter without delivering a payload; used when Send
// fails to serialize or write its request, so no response can arrive.
func (s *Sorter) Cancel(id uint32) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if ok {
		close(ch)
	}
}

// FailAll completes every pending waiter with ErrNotConnected by closing
// their channels with no payload; called on Disconnect/connection loss.
func (s *Sorter) FailAll() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[uint32]chan []byte)
	s.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}
