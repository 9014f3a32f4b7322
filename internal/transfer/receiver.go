package transfer

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/nudgexfer/nudge/internal/discovery"
	"github.com/nudgexfer/nudge/internal/holepunch"
	"github.com/nudgexfer/nudge/internal/nudgeerr"
	"github.com/nudgexfer/nudge/internal/rdt"
	"github.com/nudgexfer/nudge/pkg/wire"
)

// ConfirmFunc asks the user a yes/no question, returning their answer.
// Never called when NoPrompt is set (the caller must reject instead).
type ConfirmFunc func(prompt string) bool

// ReceiveOptions configures a receiver driver run (spec.md §4.6, CLI
// surface §6.3).
type ReceiveOptions struct {
	Passphrase    string
	OutFile       string // explicit -o; empty derives from the offered file name
	ChunkSize     int
	Force         bool
	NoPrompt      bool
	OverwriteFile bool
	SkipHash      bool
	HideHostname  bool
	RelayAddr     string
}

// ReceiveResult summarises a completed receive, for the CLI and the audit log.
type ReceiveResult struct {
	FileName   string
	FilePath   string
	FileSize   int64
	FileHash   string
	SenderHost string
	Duration   time.Duration
}

// Receive runs the receiver driver end to end: discover the sender (LAN
// first, relay as fallback), confirm with the user, write the incoming
// stream to disk, then verify the hash if one was offered.
//
// The relay's one-shot claim (R2X_RSC) is not sent until both the
// overwrite prompt and the force prompt have passed: everything before
// that point uses only the metadata from the earlier R2X_RFI/X2R_AFI
// exchange (or the mDNS TXT record on the LAN fast path), matching the
// original command's ordering. Declining either prompt must never
// burn the offer.
func Receive(opts ReceiveOptions, confirm ConfirmFunc, onStatus StatusFunc, onProgress ProgressFunc) (*ReceiveResult, error) {
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

	onStatus("searching for sender on local network")
	offer, err := findOffer(opts)
	if err != nil {
		return nil, err
	}
	meta := offer.meta

	hashStr, hashPresent := meta.FileHash.Value()
	hostStr, hostPresent := meta.SenderHost.Value()
	senderHost := "<anonymous>"
	if hostPresent {
		senderHost = hostStr
	}
	onStatus(fmt.Sprintf("offer: %s (%d bytes) from %s", meta.FileName, meta.FileSize, senderHost))

	outPath := resolveOutputPath(opts.OutFile, meta.FileName)

	if !opts.OverwriteFile {
		if _, err := os.Stat(outPath); err == nil {
			if opts.NoPrompt {
				offer.abandon()
				return nil, nudgeerr.ErrNoPromptExit
			}
			if !confirm(fmt.Sprintf("File %s already exists. Overwrite?", outPath)) {
				offer.abandon()
				return nil, ErrCancelled
			}
		}
	}
	if !opts.Force {
		if opts.NoPrompt {
			offer.abandon()
			return nil, nudgeerr.ErrNoPromptExit
		}
		if !confirm("Do you want to download the file?") {
			offer.abandon()
			return nil, ErrCancelled
		}
	}

	out, err := os.OpenFile(outPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		offer.abandon()
		return nil, err
	}
	defer out.Close()
	if err := out.Truncate(int64(meta.FileSize)); err != nil {
		offer.abandon()
		return nil, err
	}

	dataConn, err := offer.claim()
	if err != nil {
		return nil, err
	}
	defer dataConn.Close()

	onStatus("synchronizing NAT traversal")
	if err := holepunch.Synchronize(dataConn); err != nil {
		return nil, err
	}

	onStatus("receiving file")
	receiver := rdt.NewReceiver(dataConn)
	var hasher hashWriter
	if !opts.SkipHash && hashPresent {
		hasher = newIncrementalHasher()
	}

	buf := make([]byte, chunkSize)
	var received int64
	for {
		n, err := receiver.Read(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return nil, err
		}
		if hasher != nil {
			hasher.Write(buf[:n])
		}
		received += int64(n)
		onProgress(received, int64(meta.FileSize))
	}

	result := &ReceiveResult{
		FileName:   meta.FileName,
		FilePath:   outPath,
		FileSize:   int64(meta.FileSize),
		SenderHost: senderHost,
		Duration:   time.Since(start),
	}

	if opts.SkipHash || !hashPresent {
		onStatus("integrity check skipped")
		return result, nil
	}

	onStatus("verifying file hash")
	actual := hasher.Sum()
	if actual != hashStr {
		return result, &nudgeerr.HashMismatch{Expected: hashStr, Actual: actual}
	}
	result.FileHash = hashStr
	onStatus("integrity check passed")
	return result, nil
}

// resolveOutputPath derives the path Receive writes to: explicit if
// the caller gave one, otherwise the offered file name with any
// directory component stripped, since the sender's advertised name is
// untrusted input (a traversal name like "../../etc/passwd" must not
// escape the current directory).
func resolveOutputPath(explicit, fileName string) string {
	outPath := explicit
	if outPath == "" {
		outPath = filepath.Base(fileName)
	}
	if outPath == "." || outPath == "/" || outPath == "" {
		outPath = "received_file"
	}
	return outPath
}

// offerMeta is the information the receiver needs before it opens the
// output file, whether it came from the relay's X2R_AFI or an mDNS TXT
// record on the LAN fast path.
type offerMeta struct {
	FileName   string
	FileSize   uint64
	FileHash   wire.AnonymousString
	SenderHost wire.AnonymousString
}

// pendingOffer is a discovered offer the receiver has not yet claimed.
// meta is populated from a non-committing lookup; claim performs
// whatever one-shot action is needed to actually connect to the
// sender, and abandon releases any resources held open for a claim
// that will never come (the user declined a prompt, or no-prompt
// blocked one).
type pendingOffer struct {
	meta    offerMeta
	claim   func() (*net.UDPConn, error)
	abandon func()
}

// findOffer locates a sender without committing to the transfer: it
// tries the LAN first (SPEC_FULL.md's mDNS fast path), then falls back
// to the relay's R2X_RFI/X2R_AFI exchange. Claiming the offer — dialing
// the LAN peer directly, or sending the relay's R2X_RSC and
// reconnecting to the sender's advertised address — is deferred to the
// returned claim function, so a declined prompt never burns the
// relay's one-shot offer.
func findOffer(opts ReceiveOptions) (*pendingOffer, error) {
	if found, err := discovery.FindSender(opts.Passphrase, lanDiscoveryTimeout); err == nil {
		meta := offerMeta{
			FileName: found.Offer.FileName,
			FileSize: found.Offer.FileSize,
		}
		if found.Offer.FileHash != "" {
			meta.FileHash = wire.Anon(found.Offer.FileHash)
		}
		if found.Offer.Host != "" {
			meta.SenderHost = wire.Anon(found.Offer.Host)
		}

		addr, err := net.ResolveUDPAddr("udp", found.Addr)
		if err != nil {
			return nil, err
		}
		return &pendingOffer{
			meta: meta,
			claim: func() (*net.UDPConn, error) {
				return net.DialUDP("udp", nil, addr)
			},
			abandon: func() {},
		}, nil
	}

	relayAddr, err := net.ResolveUDPAddr("udp", opts.RelayAddr)
	if err != nil {
		return nil, err
	}
	relayConn, err := net.DialUDP("udp", nil, relayAddr)
	if err != nil {
		return nil, err
	}

	if err := wire.Send(relayConn, wire.TagRequestFileInfo, wire.RequestFileInfo{Passphrase: opts.Passphrase}); err != nil {
		relayConn.Close()
		return nil, err
	}
	var info wire.FileInfo
	if err := wire.Receive(relayConn, wire.TagFileInfo, &info); err != nil {
		relayConn.Close()
		return nil, err
	}

	claimed := false
	return &pendingOffer{
		meta: offerMeta{
			FileName:   info.FileName,
			FileSize:   info.FileSize,
			FileHash:   info.FileHash,
			SenderHost: info.SenderHost,
		},
		claim: func() (*net.UDPConn, error) {
			claimed = true
			receiverHost, err := hideOrGetHostname(opts.HideHostname)
			if err != nil {
				relayConn.Close()
				return nil, err
			}
			if err := wire.Send(relayConn, wire.TagRequestSenderConn, wire.RequestSenderConnection{
				Passphrase:   opts.Passphrase,
				FileHash:     info.FileHash,
				ReceiverHost: receiverHost,
			}); err != nil {
				relayConn.Close()
				return nil, err
			}

			// The relay never replies to R2X_RSC on the receiver
			// side: the sender address came from the earlier
			// X2R_AFI, not from any response to the claim.
			senderAddr, err := net.ResolveUDPAddr("udp", info.SenderAddr)
			if err != nil {
				relayConn.Close()
				return nil, err
			}
			local := relayConn.LocalAddr().(*net.UDPAddr)
			relayConn.Close()
			return reconnect(local, senderAddr)
		},
		abandon: func() {
			if !claimed {
				relayConn.Close()
			}
		},
	}, nil
}
