// Package relay implements the rendezvous relay of spec.md §4.3: a
// stateless-per-session UDP responder brokering a passphrase-bound
// file offer between a sender and the receiver that claims it.
package relay

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nudgexfer/nudge/internal/nudgeerr"
	"github.com/nudgexfer/nudge/internal/passphrase"
	"github.com/nudgexfer/nudge/pkg/wire"
)

// DefaultTTL is the suggested offer lifetime from §4.3.
const DefaultTTL = 10 * time.Minute

// Service is the relay's control loop: one UDP socket, one Store, and
// the passphrase minter it hands to new offers.
type Service struct {
	conn      net.PacketConn
	store     Store
	generator *passphrase.Generator
	log       zerolog.Logger
}

// NewService wraps conn (typically a *net.UDPConn from ListenUDP bound
// to a public address) as a relay serving offers out of store.
func NewService(conn net.PacketConn, store Store) *Service {
	return &Service{
		conn:      conn,
		store:     store,
		generator: passphrase.New(passphrase.DefaultWordCount),
		log:       log.With().Str("component", "relay").Logger(),
	}
}

// Serve processes datagrams until ctx is cancelled or the socket
// fails. A single bad request never stops the loop (§4.3): any
// handling failure is reported back to its originator as an ERROR
// control message.
func (s *Service) Serve(ctx context.Context) error {
	buf := make([]byte, wire.MaxControlMessageSize)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		from, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}

		msg := make([]byte, n)
		copy(msg, buf[:n])
		s.handle(msg, from)
	}
}

func (s *Service) handle(raw []byte, from *net.UDPAddr) {
	tag, body := wire.Decode(raw)

	var err error
	switch tag {
	case wire.TagRequestPassphrase:
		err = s.handleRequestPassphrase(body, from)
	case wire.TagRequestFileInfo:
		err = s.handleRequestFileInfo(body, from)
	case wire.TagRequestSenderConn:
		err = s.handleRequestSenderConnection(body, from)
	default:
		err = nudgeerr.ErrUnknownCommand
	}

	if err != nil {
		s.log.Warn().Err(err).Str("from", from.String()).Str("tag", string(tag)).Msg("failed to handle control message")
		if _, writeErr := s.conn.WriteTo(wire.EncodeError(err.Error()), from); writeErr != nil {
			s.log.Warn().Err(writeErr).Msg("failed to send error reply")
		}
	}
}

// handleRequestPassphrase implements S2X_RP: mint a passphrase, record
// the offer under the sender's observed source endpoint, and reply.
func (s *Service) handleRequestPassphrase(body string, from *net.UDPAddr) error {
	var req wire.RequestPassphrase
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return err
	}

	phrase, err := s.generator.Generate(func(p string) bool {
		_, taken := s.store.Get(p)
		return taken
	})
	if err != nil {
		return err
	}

	s.store.Put(phrase, &FileOffer{
		FileSize:       req.FileSize,
		FileName:       req.FileName,
		FileHash:       req.FileHash,
		SenderHost:     req.SenderHost,
		SenderEndpoint: from,
		CreatedAt:      time.Now(),
	})

	return s.reply(from, wire.TagPassphraseMinted, wire.PassphraseMinted{Passphrase: phrase})
}

// handleRequestFileInfo implements R2X_RFI: an idempotent lookup.
func (s *Service) handleRequestFileInfo(body string, from *net.UDPAddr) error {
	var req wire.RequestFileInfo
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return err
	}

	offer, ok := s.store.Get(req.Passphrase)
	if !ok {
		return nudgeerr.ErrPassphraseNotFound
	}

	return s.reply(from, wire.TagFileInfo, wire.FileInfo{
		FileSize:   offer.FileSize,
		FileName:   offer.FileName,
		FileHash:   offer.FileHash,
		SenderHost: offer.SenderHost,
		CreatedAt:  uint64(offer.CreatedAt.UnixMilli()),
		SenderAddr: offer.SenderEndpoint.String(),
	})
}

// handleRequestSenderConnection implements R2X_RSC: the hash-gated,
// one-shot claim that hands the receiver's endpoint to the sender.
func (s *Service) handleRequestSenderConnection(body string, from *net.UDPAddr) error {
	var req wire.RequestSenderConnection
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return err
	}

	offer, ok := s.store.Get(req.Passphrase)
	if !ok {
		return nudgeerr.ErrPassphraseNotFound
	}
	if !offer.FileHash.Equal(req.FileHash) {
		return nudgeerr.ErrPassphraseNotFound
	}

	s.store.Delete(req.Passphrase)

	return s.reply(offer.SenderEndpoint, wire.TagSenderConnectToReceive, wire.SenderConnectToReceiver{
		ReceiverAddr: from.String(),
		ReceiverHost: req.ReceiverHost,
	})
}

func (s *Service) reply(to *net.UDPAddr, tag wire.Tag, body any) error {
	msg, err := wire.Encode(tag, body)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteTo(msg, to)
	return err
}
