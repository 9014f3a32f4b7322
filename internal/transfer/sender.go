package transfer

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nudgexfer/nudge/internal/discovery"
	"github.com/nudgexfer/nudge/internal/holepunch"
	"github.com/nudgexfer/nudge/internal/rdt"
	"github.com/nudgexfer/nudge/pkg/wire"
)

// SendOptions configures a sender driver run (spec.md §4.6, CLI
// surface §6.3).
type SendOptions struct {
	FilePath     string
	ChunkSize    int
	Delay        time.Duration
	SkipHash     bool
	HideHostname bool
	RelayAddr    string
	Advertise    bool // best-effort LAN advertising, like the teacher's fire-and-forget goroutine
}

// SendResult summarises a completed send, for the CLI and the audit log.
type SendResult struct {
	Passphrase string
	FileName   string
	FileSize   int64
	FileHash   string
	Duration   time.Duration
}

// Send runs the sender driver end to end: open+hash the file, mint a
// passphrase through the relay, wait for a claim (either via the relay
// or a direct LAN dial), hole-punch, then stream the file over RDT.
func Send(ctx context.Context, opts SendOptions, onStatus StatusFunc, onProgress ProgressFunc) (*SendResult, error) {
	if onStatus == nil {
		onStatus = noopStatus
	}
	if onProgress == nil {
		onProgress = noopProgress
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	start := time.Now()

	file, err := os.Open(opts.FilePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	fileSize := info.Size()
	fileName := filepath.Base(opts.FilePath)

	fileHash := wire.Hidden()
	if !opts.SkipHash {
		onStatus("computing file hash")
		sum, err := HashFile(file)
		if err != nil {
			return nil, err
		}
		fileHash = wire.Anon(sum)
		if _, err := file.Seek(0, 0); err != nil {
			return nil, err
		}
	}

	senderHost, err := hideOrGetHostname(opts.HideHostname)
	if err != nil {
		return nil, err
	}

	relayAddr, err := net.ResolveUDPAddr("udp", opts.RelayAddr)
	if err != nil {
		return nil, err
	}
	relayConn, err := net.DialUDP("udp", nil, relayAddr)
	if err != nil {
		return nil, err
	}

	onStatus("requesting passphrase from relay")
	if err := wire.Send(relayConn, wire.TagRequestPassphrase, wire.RequestPassphrase{
		FileSize:   uint64(fileSize),
		FileName:   fileName,
		FileHash:   fileHash,
		SenderHost: senderHost,
	}); err != nil {
		relayConn.Close()
		return nil, err
	}

	var minted wire.PassphraseMinted
	if err := wire.Receive(relayConn, wire.TagPassphraseMinted, &minted); err != nil {
		relayConn.Close()
		return nil, err
	}
	onStatus(fmt.Sprintf("passphrase: %s", minted.Passphrase))

	var lanConn *net.UDPConn
	var stopAdvertising func()
	if opts.Advertise {
		if lc, err := net.ListenUDP("udp", &net.UDPAddr{}); err == nil {
			lanConn = lc
			lanPort := lc.LocalAddr().(*net.UDPAddr).Port
			hashStr, _ := fileHash.Value()
			hostStr, _ := senderHost.Value()
			stop, err := discovery.Advertise(lanPort, minted.Passphrase, discovery.Offer{
				FileName: fileName,
				FileSize: uint64(fileSize),
				FileHash: hashStr,
				Host:     hostStr,
			})
			if err != nil {
				onStatus(fmt.Sprintf("LAN advertising unavailable: %v", err))
				lanConn.Close()
				lanConn = nil
			} else {
				stopAdvertising = stop
			}
		}
	}

	onStatus("waiting for a receiver to claim the passphrase")
	dataConn, err := awaitClaim(relayConn, lanConn)
	if stopAdvertising != nil {
		stopAdvertising()
	}
	if err != nil {
		return nil, err
	}
	defer dataConn.Close()

	onStatus("synchronizing NAT traversal")
	if err := holepunch.Synchronize(dataConn); err != nil {
		return nil, err
	}

	onStatus("sending file")
	sender := rdt.NewSender(dataConn)
	delay := opts.Delay
	if delay == 0 {
		delay = DefaultDelay
	}

	buf := make([]byte, chunkSize)
	var sent int64
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		n, err := file.Read(buf)
		if n > 0 {
			if err := sender.WriteAndFlush(buf[:n], false, delay); err != nil {
				return nil, err
			}
			sent += int64(n)
			onProgress(sent, fileSize)
		}
		if err != nil {
			break
		}
	}
	if _, err := sender.End(); err != nil {
		return nil, err
	}

	hashStr, _ := fileHash.Value()
	return &SendResult{
		Passphrase: minted.Passphrase,
		FileName:   fileName,
		FileSize:   fileSize,
		FileHash:   hashStr,
		Duration:   time.Since(start),
	}, nil
}

// awaitClaim blocks until either the relay delivers X2S_SCON or a
// receiver dials the advertised LAN socket directly, whichever happens
// first, and returns a socket connected to that receiver.
func awaitClaim(relayConn *net.UDPConn, lanConn *net.UDPConn) (*net.UDPConn, error) {
	type relayResult struct {
		scon wire.SenderConnectToReceiver
		err  error
	}
	type lanResult struct {
		remote *net.UDPAddr
		err    error
	}

	relayCh := make(chan relayResult, 1)
	go func() {
		var scon wire.SenderConnectToReceiver
		err := wire.Receive(relayConn, wire.TagSenderConnectToReceive, &scon)
		relayCh <- relayResult{scon, err}
	}()

	var lanCh chan lanResult
	if lanConn != nil {
		lanCh = make(chan lanResult, 1)
		go func() {
			buf := make([]byte, 2)
			n, addr, err := lanConn.ReadFromUDP(buf)
			if err != nil {
				lanCh <- lanResult{nil, err}
				return
			}
			_ = n
			lanCh <- lanResult{addr, nil}
		}()
	}

	relayLocal := relayConn.LocalAddr().(*net.UDPAddr)
	var lanLocal *net.UDPAddr
	if lanConn != nil {
		lanLocal = lanConn.LocalAddr().(*net.UDPAddr)
	}

	closeBoth := func() {
		relayConn.Close()
		if lanConn != nil {
			lanConn.Close()
		}
	}

	select {
	case r := <-relayCh:
		closeBoth()
		if r.err != nil {
			return nil, r.err
		}
		receiverAddr, err := net.ResolveUDPAddr("udp", r.scon.ReceiverAddr)
		if err != nil {
			return nil, err
		}
		return reconnect(relayLocal, receiverAddr)
	case r := <-func() chan lanResult {
		if lanCh != nil {
			return lanCh
		}
		return make(chan lanResult) // never fires
	}():
		closeBoth()
		if r.err != nil {
			return nil, r.err
		}
		log.Info().Str("peer", r.remote.String()).Msg("receiver found us directly on the LAN")
		return reconnect(lanLocal, r.remote)
	}
}
