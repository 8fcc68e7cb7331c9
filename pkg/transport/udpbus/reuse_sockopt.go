//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package udpbus

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr 允许同一主机上的多个进程绑定同一组播端口
func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if serr == nil {
			serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		}
	})
	if err != nil {
		return err
	}
	return serr
}
