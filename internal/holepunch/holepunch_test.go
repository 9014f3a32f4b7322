package holepunch

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

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

func TestSynchronizeCompletesOnBothSides(t *testing.T) {
	connA, connB := udpPair(t)
	defer connA.Close()
	defer connB.Close()

	errA := make(chan error, 1)
	errB := make(chan error, 1)

	go func() { errA <- Synchronize(connA) }()
	go func() { errB <- Synchronize(connB) }()

	select {
	case err := <-errA:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("peer A never completed the handshake")
	}
	select {
	case err := <-errB:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("peer B never completed the handshake")
	}
}
