package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// FoundSender is what FindSender returns on a match: the sender's LAN
// address plus the offer metadata carried in its TXT record.
type FoundSender struct {
	Addr  string
	Offer Offer
}

// FindSender scans the LAN for a nudge sender advertising passphrase,
// returning its address and offer metadata if one answers before timeout.
func FindSender(passphrase string, timeout time.Duration) (*FoundSender, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	targetHash := hashPassphrase(passphrase)

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no sender advertising this passphrase found on the LAN")
		case entry := <-entries:
			if entry == nil {
				continue
			}

			offer, ok := matchOffer(entry.Text, targetHash)
			if !ok {
				continue
			}

			var ip net.IP
			if len(entry.AddrIPv4) > 0 {
				ip = entry.AddrIPv4[0]
			} else if len(entry.AddrIPv6) > 0 {
				ip = entry.AddrIPv6[0]
			}
			if ip == nil {
				continue
			}
			return &FoundSender{
				Addr:  net.JoinHostPort(ip.String(), fmt.Sprintf("%d", entry.Port)),
				Offer: offer,
			}, nil
		}
	}
}

// matchOffer parses a TXT record and reports whether it carries the
// target passphrase hash, returning the offer metadata if so.
func matchOffer(txt []string, targetHash string) (Offer, bool) {
	var offer Offer
	matched := false

	for _, line := range txt {
		switch {
		case strings.HasPrefix(line, "hash="):
			if strings.TrimPrefix(line, "hash=") != targetHash {
				return Offer{}, false
			}
			matched = true
		case strings.HasPrefix(line, "name="):
			offer.FileName = strings.TrimPrefix(line, "name=")
		case strings.HasPrefix(line, "size="):
			fmt.Sscanf(strings.TrimPrefix(line, "size="), "%d", &offer.FileSize)
		case strings.HasPrefix(line, "filehash="):
			offer.FileHash = strings.TrimPrefix(line, "filehash=")
		case strings.HasPrefix(line, "host="):
			offer.Host = strings.TrimPrefix(line, "host=")
		}
	}

	return offer, matched
}
