package transfer

import "net"

// reconnect dials a new UDP socket from local to remote, binding the
// same local port to a single peer, the Go equivalent of the
// original's UdpSocket::connect on an already-bound socket
// (net.UDPConn offers no re-connect, so the rebind goes through close
// then redial). It does not close the old socket: callers close it
// before calling, so the local port is free to bind again.
func reconnect(local *net.UDPAddr, remote *net.UDPAddr) (*net.UDPConn, error) {
	return net.DialUDP("udp", local, remote)
}
