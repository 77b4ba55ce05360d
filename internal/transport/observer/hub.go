package observer

import "sync"

// Hub fans emitted frame messages out to observer sessions and keeps a
// bounded backlog so late subscribers can catch up from an index.
// Publish never blocks the replay loop: a session that cannot keep up
// loses frames, which is acceptable for a viewer (the files on disk are
// complete).
type Hub struct {
	mu        sync.Mutex
	nextID    uint64
	subs      map[uint64]chan []byte
	cache     [][]byte
	cacheBase int
	cacheMax  int
	frames    int
	done      bool
	doneMsg   []byte
}

func NewHub(cacheMax int) *Hub {
	if cacheMax <= 0 {
		cacheMax = 256
	}
	return &Hub{subs: make(map[uint64]chan []byte), cacheMax: cacheMax}
}

// Publish broadcasts one encoded frame message and appends it to the
// backlog, evicting the oldest entry when full.
func (h *Hub) Publish(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.frames++
	h.cache = append(h.cache, msg)
	if len(h.cache) > h.cacheMax {
		h.cache = h.cache[1:]
		h.cacheBase++
	}
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Finish broadcasts the final message and replays it to any future
// subscriber.
func (h *Hub) Finish(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.done = true
	h.doneMsg = msg
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe registers a session. The returned backlog holds cached
// messages from fromIndex on (clamped to what is still cached), in
// order, followed by the done message when the run already finished.
func (h *Hub) Subscribe(fromIndex int) (id uint64, backlog [][]byte, ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if fromIndex >= 0 {
		start := fromIndex - h.cacheBase
		if start < 0 {
			start = 0
		}
		if start < len(h.cache) {
			backlog = append(backlog, h.cache[start:]...)
		}
	}
	if h.done {
		backlog = append(backlog, h.doneMsg)
	}

	h.nextID++
	id = h.nextID
	ch = make(chan []byte, 64)
	h.subs[id] = ch
	return id, backlog, ch
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Frames returns how many frames have been published so far.
func (h *Hub) Frames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

// Done reports whether the replay finished.
func (h *Hub) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}
