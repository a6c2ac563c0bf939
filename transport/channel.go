package transport

import (
	"sync"
)

// World is an in-process Transport implementation: every rank lives in the
// same address space and messages travel through per-(source, dest, tag)
// FIFO mailboxes. Sends enqueue their packed payload in posting order, so
// messages between one rank pair on one tag never overtake each other.
//
// World exists for tests and single-machine demonstration runs. It models
// the reliability contract of the real transports it stands in for: a send
// or receive without a matching peer blocks in Waitall forever.
type World struct {
	size int

	mu    sync.Mutex
	boxes map[boxKey]*mailbox
}

type boxKey struct {
	source int
	dest   int
	tag    int
}

// NewWorld creates an in-process communicator with the given rank count.
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, failuref("world size must be at least 1, got %d", size)
	}
	return &World{size: size, boxes: make(map[boxKey]*mailbox)}, nil
}

// Size returns the number of ranks in the world.
func (w *World) Size() int { return w.size }

// Endpoint returns the Transport bound to one rank of the world.
func (w *World) Endpoint(rank int) (*Endpoint, error) {
	if rank < 0 || rank >= w.size {
		return nil, failuref("rank %d out of range [0, %d)", rank, w.size)
	}
	return &Endpoint{world: w, rank: rank}, nil
}

func (w *World) box(key boxKey) *mailbox {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.boxes[key]
	if !ok {
		b = newMailbox()
		w.boxes[key] = b
	}
	return b
}

// mailbox matches messages to receivers for one (source, dest, tag)
// triple. Both sides are FIFO: the n-th message posted goes to the n-th
// receive registered, which is the non-overtaking guarantee the exchange
// plan's fixed entry order relies on.
type mailbox struct {
	mu    sync.Mutex
	msgs  [][]byte
	recvs []chan []byte
}

func newMailbox() *mailbox {
	return &mailbox{}
}

func (b *mailbox) put(msg []byte) {
	b.mu.Lock()
	if len(b.recvs) > 0 {
		ch := b.recvs[0]
		b.recvs = b.recvs[1:]
		b.mu.Unlock()
		ch <- msg
		return
	}
	b.msgs = append(b.msgs, msg)
	b.mu.Unlock()
}

// register claims the next undelivered message slot. The returned channel
// yields exactly one message; it never closes without one.
func (b *mailbox) register() chan []byte {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	if len(b.msgs) > 0 {
		ch <- b.msgs[0]
		b.msgs = b.msgs[1:]
	} else {
		b.recvs = append(b.recvs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Endpoint is one rank's view of a World. It implements Transport and
// Sendrecver.
type Endpoint struct {
	world *World
	rank  int
}

var (
	_ Transport  = (*Endpoint)(nil)
	_ Sendrecver = (*Endpoint)(nil)
)

// Rank returns the rank this endpoint is bound to.
func (e *Endpoint) Rank() int { return e.rank }

// Size returns the number of ranks in the underlying world.
func (e *Endpoint) Size() int { return e.world.size }

// Commit validates the spec and builds a reusable gather/scatter handle.
func (e *Endpoint) Commit(spec TypeSpec) (Datatype, error) {
	if len(spec.Segments) == 0 {
		return nil, failuref("commit: empty type spec")
	}
	end := 0
	for i, seg := range spec.Segments {
		if seg.Offset < 0 || seg.Length <= 0 {
			return nil, failuref("commit: segment %d has offset %d length %d", i, seg.Offset, seg.Length)
		}
		if seg.Offset+seg.Length > end {
			end = seg.Offset + seg.Length
		}
	}
	segs := make([]Segment, len(spec.Segments))
	copy(segs, spec.Segments)
	return &datatype{segs: segs, size: spec.Size(), end: end}, nil
}

// datatype is a committed TypeSpec plus the derived bounds needed to pack
// and unpack against a caller buffer.
type datatype struct {
	segs  []Segment
	size  int // packed payload bytes
	end   int // highest byte touched in the caller buffer
	freed bool
}

func (d *datatype) Size() int { return d.size }

// Free marks the handle unusable. Idempotent.
func (d *datatype) Free() { d.freed = true }

func (d *datatype) check(op string, buf []byte) error {
	if d.freed {
		return failuref("%s: datatype already freed", op)
	}
	if len(buf) < d.end {
		return failuref("%s: buffer %d bytes, datatype needs %d", op, len(buf), d.end)
	}
	return nil
}

// gather packs the selected byte ranges of buf into one message.
func (d *datatype) gather(buf []byte) []byte {
	msg := make([]byte, 0, d.size)
	for _, seg := range d.segs {
		msg = append(msg, buf[seg.Offset:seg.Offset+seg.Length]...)
	}
	return msg
}

// scatter unpacks msg into the selected byte ranges of buf.
func (d *datatype) scatter(buf, msg []byte) error {
	if len(msg) != d.size {
		return failuref("receive: message %d bytes, datatype expects %d", len(msg), d.size)
	}
	pos := 0
	for _, seg := range d.segs {
		copy(buf[seg.Offset:seg.Offset+seg.Length], msg[pos:pos+seg.Length])
		pos += seg.Length
	}
	return nil
}

// request completes when done is closed; err is set before the close.
type request struct {
	done chan struct{}
	err  error
}

func newRequest() *request {
	return &request{done: make(chan struct{})}
}

func completedRequest(err error) *request {
	r := newRequest()
	r.err = err
	close(r.done)
	return r
}

func (r *request) finish(err error) {
	r.err = err
	close(r.done)
}

func (r *request) wait() error {
	<-r.done
	return r.err
}

// Isend packs the payload through dt and deposits it in the destination
// mailbox before returning, so messages on one (pair, tag) arrive in
// posting order. The returned request is already complete.
func (e *Endpoint) Isend(buf []byte, dt Datatype, dest, tag int) (Request, error) {
	d, err := e.datatype("send", dt, buf)
	if err != nil {
		return nil, err
	}
	if dest < 0 || dest >= e.world.size {
		return nil, failuref("send: destination rank %d out of range [0, %d)", dest, e.world.size)
	}
	e.world.box(boxKey{source: e.rank, dest: dest, tag: tag}).put(d.gather(buf))
	return completedRequest(nil), nil
}

// Irecv posts a receive: the slot in the matching mailbox is claimed
// immediately (so receives on one (source, tag) match messages in posting
// order) and a goroutine scatters the payload into buf once it arrives.
// The request completes in Waitall.
func (e *Endpoint) Irecv(buf []byte, dt Datatype, source, tag int) (Request, error) {
	d, err := e.datatype("receive", dt, buf)
	if err != nil {
		return nil, err
	}
	if source < 0 || source >= e.world.size {
		return nil, failuref("receive: source rank %d out of range [0, %d)", source, e.world.size)
	}
	req := newRequest()
	slot := e.world.box(boxKey{source: source, dest: e.rank, tag: tag}).register()
	go func() {
		req.finish(d.scatter(buf, <-slot))
	}()
	return req, nil
}

// Sendrecv is the fused bidirectional exchange: the send is deposited
// immediately and the returned request tracks the receive.
func (e *Endpoint) Sendrecv(sendBuf []byte, sendType Datatype, dest int,
	recvBuf []byte, recvType Datatype, source, tag int) (Request, error) {
	if _, err := e.Isend(sendBuf, sendType, dest, tag); err != nil {
		return nil, err
	}
	return e.Irecv(recvBuf, recvType, source, tag)
}

// Waitall blocks until every request completes and returns the first
// failure. Nil requests are skipped.
func (e *Endpoint) Waitall(reqs []Request) error {
	var firstErr error
	for _, r := range reqs {
		if r == nil {
			continue
		}
		if err := r.wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Endpoint) datatype(op string, dt Datatype, buf []byte) (*datatype, error) {
	if dt == nil {
		return nil, failuref("%s: nil datatype", op)
	}
	d, ok := dt.(*datatype)
	if !ok {
		return nil, failuref("%s: datatype committed by a different transport", op)
	}
	if err := d.check(op, buf); err != nil {
		return nil, err
	}
	return d, nil
}
