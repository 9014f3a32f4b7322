package rdt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nudgexfer/nudge/internal/simulation"
)

// TestWriteAndFlushSurvivesRandomLoss sends a stream of chunks over a
// conn that silently drops a fifth of outbound datagrams, standing in
// for a congested real UDP path. The resend-probe watermark in §4.5.3
// is the backstop that makes every chunk arrive anyway.
func TestWriteAndFlushSurvivesRandomLoss(t *testing.T) {
	origAck, origLost, origProbe := ackReadTimeout, exitOnLostAfter, resendProbeAfter
	ackReadTimeout = 10 * time.Millisecond
	exitOnLostAfter = 2 * time.Second
	resendProbeAfter = 40 * time.Millisecond
	defer func() {
		ackReadTimeout, exitOnLostAfter, resendProbeAfter = origAck, origLost, origProbe
	}()

	connA, connB := udpPair(t)
	defer connA.Close()
	defer connB.Close()

	lossy := simulation.NewLossyConn(connA, 0.2, 0, 42)
	sender := NewSender(lossy)
	receiver := NewReceiver(connB)

	chunks := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"}
	errCh := make(chan error, 1)
	go func() {
		for _, c := range chunks {
			if err := sender.WriteAndFlush([]byte(c), false, 0); err != nil {
				errCh <- err
				return
			}
		}
		_, err := sender.End()
		errCh <- err
	}()

	buf := make([]byte, 16)
	for _, want := range chunks {
		n, err := receiver.Read(buf)
		require.NoError(t, err)
		require.Equal(t, want, string(buf[:n]))
	}

	n, err := receiver.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.NoError(t, <-errCh)
}
