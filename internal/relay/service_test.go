package relay

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nudgexfer/nudge/internal/nudgeerr"
	"github.com/nudgexfer/nudge/pkg/wire"
)

func startService(t *testing.T, store Store) *net.UDPAddr {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	svc := NewService(conn, store)
	ctx, cancel := context.WithCancel(context.Background())
	go svc.Serve(ctx)

	t.Cleanup(func() {
		cancel()
		conn.Close()
	})

	return conn.LocalAddr().(*net.UDPAddr)
}

func dialRelay(t *testing.T, relayAddr *net.UDPAddr) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, relayAddr)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRequestPassphraseThenFileInfo(t *testing.T) {
	relayAddr := startService(t, NewMemStore(DefaultTTL))
	sender := dialRelay(t, relayAddr)
	receiver := dialRelay(t, relayAddr)

	require.NoError(t, wire.Send(sender, wire.TagRequestPassphrase, wire.RequestPassphrase{
		FileSize: 5000,
		FileName: "report.pdf",
	}))
	var minted wire.PassphraseMinted
	require.NoError(t, wire.Receive(sender, wire.TagPassphraseMinted, &minted))
	require.NotEmpty(t, minted.Passphrase)

	require.NoError(t, wire.Send(receiver, wire.TagRequestFileInfo, wire.RequestFileInfo{Passphrase: minted.Passphrase}))
	var info wire.FileInfo
	require.NoError(t, wire.Receive(receiver, wire.TagFileInfo, &info))
	require.Equal(t, uint64(5000), info.FileSize)
	require.Equal(t, "report.pdf", info.FileName)
	require.Equal(t, sender.LocalAddr().String(), info.SenderAddr)
}

func TestRequestFileInfoUnknownPassphraseFails(t *testing.T) {
	relayAddr := startService(t, NewMemStore(DefaultTTL))
	receiver := dialRelay(t, relayAddr)

	require.NoError(t, wire.Send(receiver, wire.TagRequestFileInfo, wire.RequestFileInfo{Passphrase: "never-offered"}))

	var info wire.FileInfo
	err := wire.Receive(receiver, wire.TagFileInfo, &info)
	var srvErr *nudgeerr.ServerError
	require.ErrorAs(t, err, &srvErr)
	require.Equal(t, nudgeerr.ErrPassphraseNotFound.Error(), srvErr.Reason)
}

// TestHashGateLeavesOfferPresent is T4: a mismatched file_hash on
// R2X_RSC must not consume the offer.
func TestHashGateLeavesOfferPresent(t *testing.T) {
	relayAddr := startService(t, NewMemStore(DefaultTTL))
	sender := dialRelay(t, relayAddr)
	receiver := dialRelay(t, relayAddr)

	require.NoError(t, wire.Send(sender, wire.TagRequestPassphrase, wire.RequestPassphrase{
		FileSize: 10,
		FileName: "x",
		FileHash: wire.Anon("hash-one"),
	}))
	var minted wire.PassphraseMinted
	require.NoError(t, wire.Receive(sender, wire.TagPassphraseMinted, &minted))

	require.NoError(t, wire.Send(receiver, wire.TagRequestSenderConn, wire.RequestSenderConnection{
		Passphrase: minted.Passphrase,
		FileHash:   wire.Anon("hash-two"),
	}))
	var scon wire.SenderConnectToReceiver
	err := wire.Receive(receiver, wire.TagSenderConnectToReceive, &scon)
	var srvErr *nudgeerr.ServerError
	require.ErrorAs(t, err, &srvErr)

	// offer must still be present for a later lookup
	require.NoError(t, wire.Send(receiver, wire.TagRequestFileInfo, wire.RequestFileInfo{Passphrase: minted.Passphrase}))
	var info wire.FileInfo
	require.NoError(t, wire.Receive(receiver, wire.TagFileInfo, &info))
	require.Equal(t, "x", info.FileName)
}

// TestPassphraseClaimIsOneShot is T3: after a successful R2X_RSC, a
// second lookup for the same passphrase fails.
func TestPassphraseClaimIsOneShot(t *testing.T) {
	relayAddr := startService(t, NewMemStore(DefaultTTL))
	sender := dialRelay(t, relayAddr)
	receiver := dialRelay(t, relayAddr)

	require.NoError(t, wire.Send(sender, wire.TagRequestPassphrase, wire.RequestPassphrase{
		FileSize: 10,
		FileName: "x",
	}))
	var minted wire.PassphraseMinted
	require.NoError(t, wire.Receive(sender, wire.TagPassphraseMinted, &minted))

	require.NoError(t, wire.Send(receiver, wire.TagRequestSenderConn, wire.RequestSenderConnection{
		Passphrase: minted.Passphrase,
	}))

	var scon wire.SenderConnectToReceiver
	require.NoError(t, wire.Receive(sender, wire.TagSenderConnectToReceive, &scon))
	require.Equal(t, receiver.LocalAddr().String(), scon.ReceiverAddr)

	require.NoError(t, wire.Send(receiver, wire.TagRequestFileInfo, wire.RequestFileInfo{Passphrase: minted.Passphrase}))
	var info wire.FileInfo
	err := wire.Receive(receiver, wire.TagFileInfo, &info)
	var srvErr *nudgeerr.ServerError
	require.ErrorAs(t, err, &srvErr)
	require.Equal(t, nudgeerr.ErrPassphraseNotFound.Error(), srvErr.Reason)
}
