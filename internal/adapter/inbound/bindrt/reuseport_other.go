//go:build !unix

package bindrt

import (
	"errors"
	"syscall"
)

// reusePortControl has no portable equivalent outside unix; thread-per-core
// mode is a Linux/BSD deployment feature and Runtime.ReusePort should stay
// false on other platforms.
func reusePortControl(_ string, _ string, _ syscall.RawConn) error {
	return errors.New("bindrt: SO_REUSEPORT is not supported on this platform")
}
