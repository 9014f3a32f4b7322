package transfer

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nudgexfer/nudge/internal/nudgeerr"
	"github.com/nudgexfer/nudge/internal/relay"
)

func startRelay(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	svc := relay.NewService(conn, relay.NewMemStore(relay.DefaultTTL))
	ctx, cancel := context.WithCancel(context.Background())
	go svc.Serve(ctx)

	t.Cleanup(func() {
		cancel()
		conn.Close()
	})
	return conn.LocalAddr().String()
}

func TestSendReceiveRoundTrip(t *testing.T) {
	relayAddr := startRelay(t)

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "greeting.txt")
	content := strings.Repeat("hello nudge\n", 500)
	require.NoError(t, os.WriteFile(srcPath, []byte(content), 0644))

	outPath := filepath.Join(dir, "received.txt")

	passphraseCh := make(chan string, 1)
	var sendResult *SendResult
	var sendErr error

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sendResult, sendErr = Send(context.Background(), SendOptions{
			FilePath:  srcPath,
			ChunkSize: 64,
			RelayAddr: relayAddr,
		}, func(s string) {
			if strings.HasPrefix(s, "passphrase: ") {
				passphraseCh <- strings.TrimPrefix(s, "passphrase: ")
			}
		}, nil)
	}()

	var passphrase string
	select {
	case passphrase = <-passphraseCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for passphrase")
	}

	recvResult, err := Receive(ReceiveOptions{
		Passphrase: passphrase,
		OutFile:    outPath,
		ChunkSize:  64,
		Force:      true,
		RelayAddr:  relayAddr,
	}, nil, nil, nil)
	require.NoError(t, err)

	wg.Wait()
	require.NoError(t, sendErr)
	require.NotNil(t, sendResult)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, content, string(got))
	require.Equal(t, sendResult.FileHash, recvResult.FileHash)
	require.NotEmpty(t, recvResult.FileHash)
}

func TestReceiveRejectsPathTraversalInFileName(t *testing.T) {
	dir := t.TempDir()

	require.Equal(t, "evil", resolveOutputPath("", "../evil"))
	require.Equal(t, "passwd", resolveOutputPath("", "/etc/passwd"))
	require.Equal(t, "passwd", resolveOutputPath("", "../../etc/passwd"))

	outPath := resolveOutputPath("", "../../etc/passwd")
	require.False(t, strings.Contains(filepath.Join(dir, outPath), ".."))

	require.Equal(t, "chosen.bin", resolveOutputPath("chosen.bin", "../../etc/passwd"))
}

func TestReceiveNoPromptExitsWithoutForce(t *testing.T) {
	relayAddr := startRelay(t)

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(srcPath, []byte("payload"), 0644))

	passphraseCh := make(chan string, 1)
	go Send(context.Background(), SendOptions{
		FilePath:  srcPath,
		ChunkSize: 64,
		RelayAddr: relayAddr,
	}, func(s string) {
		if strings.HasPrefix(s, "passphrase: ") {
			passphraseCh <- strings.TrimPrefix(s, "passphrase: ")
		}
	}, nil)

	var passphrase string
	select {
	case passphrase = <-passphraseCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for passphrase")
	}

	_, err := Receive(ReceiveOptions{
		Passphrase: passphrase,
		OutFile:    filepath.Join(dir, "out.bin"),
		NoPrompt:   true,
		RelayAddr:  relayAddr,
	}, nil, nil, nil)
	require.ErrorIs(t, err, nudgeerr.ErrNoPromptExit)
}
