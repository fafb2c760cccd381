package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mcdev12/fakemouse/go/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	// ErrSendBufferFull is returned by a peer whose outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrPeerClosed is returned by a peer that has already been closed.
	ErrPeerClosed = errors.New("peer closed")
)

// Peer is one live end of the relay channel.
type Peer interface {
	ID() string
	// Send queues a frame for the peer. It must not block.
	Send(data []byte) error
	Close() error
}

// SnapshotStore mirrors the latest accepted frame outside the process.
type SnapshotStore interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, bool, error)
}

// Publisher forwards accepted frames to sibling relay instances.
type Publisher interface {
	Publish(data []byte) error
}

// Registry tracks live peers, fans accepted frames out to every peer but the
// sender and keeps the latest accepted frame for newcomers.
type Registry struct {
	peers  map[string]Peer
	latest []byte
	mu     sync.RWMutex

	snapshots SnapshotStore
	publisher Publisher
	mirrorCh  chan []byte

	storeTimeout time.Duration
}

// RegistryOption configures optional registry collaborators.
type RegistryOption func(*Registry)

// WithSnapshotStore mirrors the latest frame into s.
func WithSnapshotStore(s SnapshotStore) RegistryOption {
	return func(r *Registry) { r.snapshots = s }
}

// WithPublisher forwards accepted local frames through p.
func WithPublisher(p Publisher) RegistryOption {
	return func(r *Registry) { r.publisher = p }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		peers:        make(map[string]Peer),
		mirrorCh:     make(chan []byte, 1),
		storeTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start writes mirrored snapshots until ctx is done. It is a no-op without a
// snapshot store.
func (r *Registry) Start(ctx context.Context) {
	if r.snapshots == nil {
		return
	}

	log.Info().Msg("snapshot mirror started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("snapshot mirror shutting down")
			return
		case data := <-r.mirrorCh:
			saveCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
			if err := r.snapshots.Save(saveCtx, data); err != nil {
				log.Warn().Err(err).Msg("failed to mirror latest message")
			}
			cancel()
		}
	}
}

// Register adds a peer and immediately hands it the latest frame, if any.
// A failed snapshot delivery does not unregister the peer.
func (r *Registry) Register(p Peer) {
	var stored []byte
	r.mu.RLock()
	empty := r.latest == nil
	r.mu.RUnlock()
	if empty {
		stored = r.loadSnapshot()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[p.ID()] = p

	latest := r.latest
	if latest == nil {
		latest = stored
	}
	if latest != nil {
		if err := p.Send(latest); err != nil {
			log.Debug().Err(err).Str("connection_id", p.ID()).Msg("failed to deliver latest message to new peer")
		}
	}

	log.Info().
		Str("connection_id", p.ID()).
		Int("total_connections", len(r.peers)).
		Msg("peer registered")
}

// Unregister removes a peer. It reports whether the peer was registered.
func (r *Registry) Unregister(p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.peers[p.ID()]
	if !exists || current != p {
		return false
	}
	delete(r.peers, p.ID())

	log.Info().
		Str("connection_id", p.ID()).
		Int("total_connections", len(r.peers)).
		Msg("peer unregistered")
	return true
}

// Handle validates a frame received from sender and relays it. Rejected
// frames are dropped and never answered.
func (r *Registry) Handle(sender Peer, raw []byte) error {
	msg, err := protocol.Validate(raw)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", peerID(sender)).
			Bytes("frame", truncate(raw, 256)).
			Msg("dropping invalid frame")
		return err
	}

	r.Broadcast(sender, raw)

	if r.publisher != nil {
		if err := r.publisher.Publish(raw); err != nil {
			log.Warn().Err(err).Str("type", string(msg.Type)).Msg("failed to forward message to cluster")
		}
	}
	return nil
}

// HandleRemote relays a frame that arrived from a sibling relay instance to
// every local peer.
func (r *Registry) HandleRemote(raw []byte) error {
	if _, err := protocol.Validate(raw); err != nil {
		log.Debug().Err(err).Msg("dropping invalid cluster frame")
		return err
	}
	r.Broadcast(nil, raw)
	return nil
}

// Broadcast stores raw as the latest frame and sends it to every registered
// peer except sender. A peer whose send fails is dropped; delivery to the
// remaining peers continues.
func (r *Registry) Broadcast(sender Peer, raw []byte) {
	data := append([]byte(nil), raw...)

	r.mu.Lock()
	r.latest = data
	targets := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if sender != nil && p == sender {
			continue
		}
		targets = append(targets, p)
	}
	r.mu.Unlock()

	r.mirror(data)

	for _, p := range targets {
		if err := p.Send(data); err != nil {
			log.Warn().
				Err(err).
				Str("connection_id", p.ID()).
				Msg("send failed, dropping peer")
			if r.Unregister(p) {
				p.Close()
			}
		}
	}

	log.Debug().
		Str("sender_id", peerID(sender)).
		Int("connections", len(targets)).
		Msg("message broadcasted")
}

// Latest returns the most recently accepted frame.
func (r *Registry) Latest() ([]byte, bool) {
	r.mu.RLock()
	latest := r.latest
	r.mu.RUnlock()

	if latest == nil {
		latest = r.loadSnapshot()
	}
	return latest, latest != nil
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	TotalConnections int  `json:"total_connections"`
	HasLatest        bool `json:"has_latest"`
}

// Stats returns statistics about active connections.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		TotalConnections: len(r.peers),
		HasLatest:        r.latest != nil,
	}
}

// mirror hands data to the snapshot writer, replacing any unwritten frame.
func (r *Registry) mirror(data []byte) {
	if r.snapshots == nil {
		return
	}
	for {
		select {
		case r.mirrorCh <- data:
			return
		default:
		}
		select {
		case <-r.mirrorCh:
		default:
		}
	}
}

func (r *Registry) loadSnapshot() []byte {
	if r.snapshots == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.storeTimeout)
	defer cancel()

	data, ok, err := r.snapshots.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load mirrored latest message")
		return nil
	}
	if !ok {
		return nil
	}
	return data
}

func peerID(p Peer) string {
	if p == nil {
		return "cluster"
	}
	return p.ID()
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
