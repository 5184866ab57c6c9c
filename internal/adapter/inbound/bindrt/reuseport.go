//go:build unix

package bindrt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePortControl is a net.ListenConfig.Control hook that sets
// SO_REUSEPORT on the listening socket before bind(2), letting multiple
// Runtimes in a thread-per-core deployment each own their own listener on
// the same address with the kernel load-balancing accepted connections
// across them.
func reusePortControl(_ string, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
