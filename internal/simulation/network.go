// Package simulation provides a lossy net.Conn wrapper for exercising
// the reliable datagram transport and hole-punch handshake against
// packet loss and latency without a real flaky network.
package simulation

import (
	"math/rand"
	"net"
	"sync"
	"time"
)

// LossyConn wraps a net.Conn and randomly drops or delays writes, the
// way a real UDP path under load behaves. internal/rdt and
// internal/holepunch both assume exactly this kind of conn: a
// connected point-to-point socket with no ordering or delivery
// guarantee beyond what they build themselves.
type LossyConn struct {
	net.Conn
	mu       sync.Mutex
	lossRate float64 // 0.0-1.0
	latency  time.Duration
	rand     *rand.Rand
}

// NewLossyConn wraps conn so lossRate fraction of writes vanish
// silently (the caller sees success, the peer never sees the bytes)
// and every surviving write is delayed by latency.
func NewLossyConn(conn net.Conn, lossRate float64, latency time.Duration, seed int64) *LossyConn {
	return &LossyConn{
		Conn:     conn,
		lossRate: lossRate,
		latency:  latency,
		rand:     rand.New(rand.NewSource(seed)),
	}
}

func (c *LossyConn) SetLossRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lossRate = rate
}

// Write drops or delays the datagram before handing it to the
// underlying conn. A dropped write still reports success: the caller
// has no way to observe datagram loss on a real UDP socket either.
func (c *LossyConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	loss := c.lossRate
	lat := c.latency
	r := c.rand.Float64()
	c.mu.Unlock()

	if r < loss {
		return len(p), nil
	}

	if lat > 0 {
		data := make([]byte, len(p))
		copy(data, p)
		go func() {
			time.Sleep(lat)
			c.Conn.Write(data)
		}()
		return len(p), nil
	}

	return c.Conn.Write(p)
}
