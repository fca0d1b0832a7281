package wseb

import (
	"github.com/eapache/queue"
)

// RequestKind is a kind of write queue item.
type RequestKind uint8

const (
	KindData RequestKind = iota
	KindPing
	KindPong
	KindReconnect
)

func (k RequestKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindReconnect:
		return "reconnect"
	default:
		return "unknown"
	}
}

// Request is an item of session write queue: either application data or a
// control request interpreted by Processor.
type Request struct {
	Kind RequestKind
	Data []byte
	// Pending is set for reconnect requests raised by a writer waiting in
	// pending slot. Such request is stale once the pending slot is empty.
	Pending bool
}

var (
	PingRequest = Request{Kind: KindPing}
	PongRequest = Request{Kind: KindPong}
)

// DataRequest wraps application payload.
func DataRequest(data []byte) Request {
	return Request{Kind: KindData, Data: data}
}

func reconnectRequest(pending bool) Request {
	return Request{Kind: KindReconnect, Pending: pending}
}

// WriteQueue is a FIFO of requests. It is not safe for concurrent use and
// must only be touched from the session loop.
type WriteQueue struct {
	q *queue.Queue
}

func newWriteQueue() *WriteQueue {
	return &WriteQueue{q: queue.New()}
}

// Push appends request to the tail.
func (wq *WriteQueue) Push(r Request) {
	wq.q.Add(r)
}

// Peek returns head request without removing it.
func (wq *WriteQueue) Peek() (Request, bool) {
	if wq.q.Length() == 0 {
		return Request{}, false
	}
	return wq.q.Peek().(Request), true
}

// Pop removes and returns head request.
func (wq *WriteQueue) Pop() (Request, bool) {
	if wq.q.Length() == 0 {
		return Request{}, false
	}
	return wq.q.Remove().(Request), true
}

func (wq *WriteQueue) Len() int {
	return wq.q.Length()
}

// Items returns a copy of queued requests in order.
func (wq *WriteQueue) Items() []Request {
	items := make([]Request, 0, wq.q.Length())
	for i := 0; i < wq.q.Length(); i++ {
		items = append(items, wq.q.Get(i).(Request))
	}
	return items
}

// Clear drops all queued requests.
func (wq *WriteQueue) Clear() {
	wq.q = queue.New()
}
