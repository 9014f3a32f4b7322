package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"
)

// Offer carries the file metadata a sender advertises alongside its
// LAN endpoint. A receiver that finds a match never contacts the relay
// (spec.md §4.3's R2X_RFI/R2X_RSC), so this TXT record is the only
// place that metadata can come from on the LAN fast path.
type Offer struct {
	FileName string
	FileSize uint64
	FileHash string // empty if the sender skipped hashing
	Host     string // empty if the sender hid its hostname
}

// Advertise announces a pending offer on the local network so a
// receiver on the same LAN can skip the relay round trip. It returns a
// shutdown function to call once the offer is claimed or abandoned.
func Advertise(port int, passphrase string, offer Offer) (func(), error) {
	hash := hashPassphrase(passphrase)
	instanceName := fmt.Sprintf("nudge-%s", hash[:8])
	txt := []string{
		fmt.Sprintf("hash=%s", hash),
		fmt.Sprintf("name=%s", offer.FileName),
		fmt.Sprintf("size=%d", offer.FileSize),
	}
	if offer.FileHash != "" {
		txt = append(txt, fmt.Sprintf("filehash=%s", offer.FileHash))
	}
	if offer.Host != "" {
		txt = append(txt, fmt.Sprintf("host=%s", offer.Host))
	}

	server, err := zeroconf.Register(instanceName, ServiceType, "local.", port, txt, nil)
	if err != nil {
		return nil, err
	}
	return server.Shutdown, nil
}
