package transfer

import (
	"os"

	"github.com/nudgexfer/nudge/internal/nudgeerr"
	"github.com/nudgexfer/nudge/pkg/wire"
)

// hideOrGetHostname returns the local hostname as a present
// AnonymousString, or the absent value when hide is true.
func hideOrGetHostname(hide bool) (wire.AnonymousString, error) {
	if hide {
		return wire.Hidden(), nil
	}
	name, err := os.Hostname()
	if err != nil {
		return wire.AnonymousString{}, nudgeerr.ErrHostname
	}
	return wire.Anon(name), nil
}
