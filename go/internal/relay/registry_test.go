package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type fakePeer struct {
	id      string
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
	closed  bool
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.frames = append(p.frames, data)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.frames))
	for i, f := range p.frames {
		out[i] = string(f)
	}
	return out
}

func frame(i int) []byte {
	return []byte(fmt.Sprintf(`{"type":"touch","x":%d,"y":0,"click":1,"fingers":1}`, i))
}

func TestBroadcastSkipsSender(t *testing.T) {
	r := NewRegistry()
	a, b, c := newFakePeer("a"), newFakePeer("b"), newFakePeer("c")
	r.Register(a)
	r.Register(b)
	r.Register(c)

	if err := r.Handle(a, frame(1)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got := a.received(); len(got) != 0 {
		t.Fatalf("sender received its own message: %v", got)
	}
	for _, p := range []*fakePeer{b, c} {
		if got := p.received(); len(got) != 1 || got[0] != string(frame(1)) {
			t.Fatalf("peer %s expected one frame, got %v", p.id, got)
		}
	}
}

func TestLateJoinerGetsLatestOnce(t *testing.T) {
	r := NewRegistry()
	a := newFakePeer("a")
	r.Register(a)

	r.Handle(a, frame(1))
	r.Handle(a, frame(2))

	late := newFakePeer("late")
	r.Register(late)

	got := late.received()
	if len(got) != 1 || got[0] != string(frame(2)) {
		t.Fatalf("late joiner expected exactly the latest frame, got %v", got)
	}
}

func TestRegisterWithoutLatestSendsNothing(t *testing.T) {
	r := NewRegistry()
	p := newFakePeer("p")
	r.Register(p)
	if got := p.received(); len(got) != 0 {
		t.Fatalf("expected no snapshot, got %v", got)
	}
}

func TestSnapshotFailureKeepsPeerRegistered(t *testing.T) {
	r := NewRegistry()
	a := newFakePeer("a")
	r.Register(a)
	r.Handle(a, frame(1))

	flaky := newFakePeer("flaky")
	flaky.sendErr = ErrSendBufferFull
	r.Register(flaky)

	if r.Stats().TotalConnections != 2 {
		t.Fatalf("failed snapshot delivery must not unregister the peer")
	}
}

func TestFailedPeerIsDroppedWithoutAbortingFanOut(t *testing.T) {
	r := NewRegistry()
	sender := newFakePeer("sender")
	bad := newFakePeer("bad")
	good1 := newFakePeer("good1")
	good2 := newFakePeer("good2")
	for _, p := range []*fakePeer{sender, bad, good1, good2} {
		r.Register(p)
	}
	bad.sendErr = errors.New("broken pipe")

	r.Handle(sender, frame(1))

	for _, p := range []*fakePeer{good1, good2} {
		if len(p.received()) != 1 {
			t.Fatalf("peer %s missed the broadcast", p.id)
		}
	}
	if !bad.closed {
		t.Fatalf("failed peer should be closed")
	}
	if n := r.Stats().TotalConnections; n != 3 {
		t.Fatalf("expected failed peer to be unregistered, have %d connections", n)
	}

	r.Handle(sender, frame(2))
	if len(good1.received()) != 2 {
		t.Fatalf("later broadcasts should still reach healthy peers")
	}
}

func TestInvalidFramesAreDropped(t *testing.T) {
	r := NewRegistry()
	a, b := newFakePeer("a"), newFakePeer("b")
	r.Register(a)
	r.Register(b)

	for _, raw := range []string{`not json`, `{"type":"touch","x":1}`, `{}`} {
		if err := r.Handle(a, []byte(raw)); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}

	if len(b.received()) != 0 || len(a.received()) != 0 {
		t.Fatalf("rejected frames must not reach any peer")
	}
	if _, ok := r.Latest(); ok {
		t.Fatalf("rejected frames must not replace the latest message")
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	p := newFakePeer("p")
	r.Register(p)

	if !r.Unregister(p) {
		t.Fatalf("expected first unregister to succeed")
	}
	if r.Unregister(p) {
		t.Fatalf("expected second unregister to be a no-op")
	}
	if r.Stats().TotalConnections != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestPerSenderOrderingIsPreserved(t *testing.T) {
	r := NewRegistry()
	sender, receiver := newFakePeer("sender"), newFakePeer("receiver")
	r.Register(sender)
	r.Register(receiver)

	for i := 0; i < 50; i++ {
		r.Handle(sender, frame(i))
	}

	got := receiver.received()
	if len(got) != 50 {
		t.Fatalf("expected 50 frames, got %d", len(got))
	}
	for i, f := range got {
		if f != string(frame(i)) {
			t.Fatalf("frame %d out of order: %s", i, f)
		}
	}
}

func TestConcurrentRegistrationAndBroadcast(t *testing.T) {
	r := NewRegistry()
	sender := newFakePeer("sender")
	r.Register(sender)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			p := newFakePeer(fmt.Sprintf("p%d", i))
			r.Register(p)
			r.Unregister(p)
		}(i)
		go func(i int) {
			defer wg.Done()
			r.Handle(sender, frame(i))
		}(i)
	}
	wg.Wait()

	if n := r.Stats().TotalConnections; n != 1 {
		t.Fatalf("expected only the sender to remain, got %d", n)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	frames [][]byte
}

func (p *recordingPublisher) Publish(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, data)
	return nil
}

func TestClusterFramesReachAllLocalPeers(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRegistry(WithPublisher(pub))
	a, b := newFakePeer("a"), newFakePeer("b")
	r.Register(a)
	r.Register(b)

	r.Handle(a, frame(1))
	if len(pub.frames) != 1 {
		t.Fatalf("expected local frame to be published, got %d", len(pub.frames))
	}

	if err := r.HandleRemote(frame(2)); err != nil {
		t.Fatalf("handle remote: %v", err)
	}
	if len(pub.frames) != 1 {
		t.Fatalf("remote frames must not be re-published")
	}
	if got := a.received(); len(got) != 1 || got[0] != string(frame(2)) {
		t.Fatalf("remote frame should reach every local peer, a got %v", got)
	}
	if got := b.received(); len(got) != 2 {
		t.Fatalf("b expected local and remote frames, got %v", got)
	}
}

func TestLatestFallsBackToSnapshotStore(t *testing.T) {
	store := &memorySnapshotStore{}
	if err := store.Save(context.Background(), frame(9)); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	r := NewRegistry(WithSnapshotStore(store))
	latest, ok := r.Latest()
	if !ok || string(latest) != string(frame(9)) {
		t.Fatalf("expected mirrored snapshot, got %s", latest)
	}

	p := newFakePeer("p")
	r.Register(p)
	if got := p.received(); len(got) != 1 || got[0] != string(frame(9)) {
		t.Fatalf("newcomer expected mirrored snapshot, got %v", got)
	}
}

func TestSnapshotMirrorWritesLatest(t *testing.T) {
	store := &memorySnapshotStore{}
	r := NewRegistry(WithSnapshotStore(store))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	a := newFakePeer("a")
	r.Register(a)
	r.Handle(a, frame(3))

	waitFor(t, func() bool {
		data, ok, _ := store.Load(context.Background())
		return ok && string(data) == string(frame(3))
	})

	cancel()
	<-done
}
