package relay

import (
	"net"
	"time"

	"github.com/nudgexfer/nudge/pkg/wire"
)

// FileOffer is the relay's per-session record (§3): the live binding
// between a minted passphrase and the sender's advertised file and
// observed endpoint.
type FileOffer struct {
	FileSize       uint64
	FileName       string
	FileHash       wire.AnonymousString
	SenderHost     wire.AnonymousString
	SenderEndpoint *net.UDPAddr
	CreatedAt      time.Time
}

// Store holds the live passphrase -> FileOffer mapping (§4.3). The
// relay's own processing loop is single-threaded, so implementations
// don't need to guard against concurrent Service callers, only against
// whatever their own backend requires (e.g. a network round trip).
type Store interface {
	// Get returns the offer for passphrase, evicting and reporting
	// absent if it has aged past the store's TTL.
	Get(passphrase string) (*FileOffer, bool)
	Put(passphrase string, offer *FileOffer)
	Delete(passphrase string)
}

// MemStore is the default in-process Store. The relay loop that calls
// it is single-threaded (§4.3), so it needs no internal locking.
// Expired offers are evicted lazily on lookup, matching the "lazy or
// periodic eviction" latitude in §4.3.
type MemStore struct {
	ttl    time.Duration
	now    func() time.Time
	offers map[string]*FileOffer
}

// NewMemStore returns an empty MemStore evicting offers older than ttl.
func NewMemStore(ttl time.Duration) *MemStore {
	return &MemStore{
		ttl:    ttl,
		now:    time.Now,
		offers: make(map[string]*FileOffer),
	}
}

func (m *MemStore) Get(passphrase string) (*FileOffer, bool) {
	offer, ok := m.offers[passphrase]
	if !ok {
		return nil, false
	}
	if m.now().Sub(offer.CreatedAt) > m.ttl {
		delete(m.offers, passphrase)
		return nil, false
	}
	return offer, true
}

func (m *MemStore) Put(passphrase string, offer *FileOffer) {
	m.offers[passphrase] = offer
}

func (m *MemStore) Delete(passphrase string) {
	delete(m.offers, passphrase)
}
