package rdt

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/nudgexfer/nudge/internal/nudgeerr"
	"github.com/stretchr/testify/require"
)

// udpPair returns two connected loopback UDP sockets, A bound to
// addrA and connected to addrB and vice versa, the same connect()-ed
// shape the hole-punch handshake hands to the RDT layer.
func udpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	la, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	lb, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	addrA := la.LocalAddr().(*net.UDPAddr)
	addrB := lb.LocalAddr().(*net.UDPAddr)
	require.NoError(t, la.Close())
	require.NoError(t, lb.Close())

	connA, err := net.DialUDP("udp", addrA, addrB)
	require.NoError(t, err)
	connB, err := net.DialUDP("udp", addrB, addrA)
	require.NoError(t, err)

	return connA, connB
}

// dropOnceConn silently swallows the first Write whose header carries
// targetSeq, simulating a datagram that left the NIC but never arrived.
type dropOnceConn struct {
	net.Conn
	targetSeq uint16
	dropped   bool
}

func (c *dropOnceConn) Write(b []byte) (int, error) {
	if !c.dropped && len(b) >= 2 && binary.BigEndian.Uint16(b[0:2]) == c.targetSeq {
		c.dropped = true
		return len(b), nil
	}
	return c.Conn.Write(b)
}

func TestWriteAndFlushRoundTrip(t *testing.T) {
	connA, connB := udpPair(t)
	defer connA.Close()
	defer connB.Close()

	sender := NewSender(connA)
	receiver := NewReceiver(connB)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sender.WriteAndFlush([]byte("chunk"), true, 0)
	}()

	buf := make([]byte, 16)
	n, err := receiver.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "chunk", string(buf[:n]))
	require.NoError(t, <-errCh)
}

func TestEndSignalsCleanEOF(t *testing.T) {
	connA, connB := udpPair(t)
	defer connA.Close()
	defer connB.Close()

	sender := NewSender(connA)
	receiver := NewReceiver(connB)

	errCh := make(chan error, 1)
	go func() {
		if err := sender.WriteAndFlush([]byte("chunk"), true, 0); err != nil {
			errCh <- err
			return
		}
		_, err := sender.End()
		errCh <- err
	}()

	buf := make([]byte, 16)
	n, err := receiver.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "chunk", string(buf[:n]))

	n, err = receiver.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.NoError(t, <-errCh)
}

// TestWriteAndFlushRecoversFromDroppedPacket drops the only WRITE
// once. The receiver sees no later packet, so it has nothing to
// request a resend for; recovery comes from the sender's own
// resend-probe watermark re-transmitting the unacked packet. The
// watermarks are shrunk for the duration of the test so recovery
// doesn't require a real 10-second wait.
func TestWriteAndFlushRecoversFromDroppedPacket(t *testing.T) {
	origAck, origLost, origProbe := ackReadTimeout, exitOnLostAfter, resendProbeAfter
	ackReadTimeout = 20 * time.Millisecond
	exitOnLostAfter = 150 * time.Millisecond
	resendProbeAfter = 200 * time.Millisecond
	defer func() {
		ackReadTimeout, exitOnLostAfter, resendProbeAfter = origAck, origLost, origProbe
	}()

	connA, connB := udpPair(t)
	defer connA.Close()
	defer connB.Close()

	sender := NewSender(&dropOnceConn{Conn: connA, targetSeq: 0})
	receiver := NewReceiver(connB)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sender.WriteAndFlush([]byte("hello"), true, 0)
	}()

	buf := make([]byte, 16)
	n, err := receiver.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
	require.NoError(t, <-errCh)
}

func TestWriteAndFlushRejectsOversizedPayload(t *testing.T) {
	connA, connB := udpPair(t)
	defer connA.Close()
	defer connB.Close()

	sender := NewSender(connA)
	err := sender.WriteAndFlush(make([]byte, MaxPayload+1), false, 0)

	var limitErr *nudgeerr.DataPacketLimitExceeded
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, MaxPayload+1, limitErr.Size)
}

func TestReadRejectsOversizedBuffer(t *testing.T) {
	connA, connB := udpPair(t)
	defer connA.Close()
	defer connB.Close()

	receiver := NewReceiver(connB)
	_, err := receiver.Read(make([]byte, MaxPayload+1))

	var limitErr *nudgeerr.BufferSizeLimitExceeded
	require.ErrorAs(t, err, &limitErr)
}
