//go:build linux

package socketcan

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport"
	"github.com/junbin-yang/cansoftbus-go/pkg/utils/logger"
)

// Conn 绑定到一个CAN接口的原始套接字
type Conn struct {
	fd      int
	ifname  string
	ifindex int
	poll    int // 毫秒

	closed bool
	mu     sync.RWMutex
	wmu    sync.Mutex
}

var _ transport.Transport = (*Conn)(nil)

// Open 打开并绑定CAN_RAW套接字
func Open(cfg Config) (*Conn, error) {
	ifindex, err := PrepareLink(cfg.Interface, cfg.CreateVcan)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: socket: %w", err)
	}

	if cfg.ExtendedOnly {
		filter := []unix.CanFilter{{Id: unix.CAN_EFF_FLAG, Mask: unix.CAN_EFF_FLAG | unix.CAN_RTR_FLAG}}
		if err := unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filter); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("socketcan: set filter: %w", err)
		}
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifindex}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind %s: %w", cfg.Interface, err)
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	logger.Infof("SocketCAN bound to %s (index %d)", cfg.Interface, ifindex)
	return &Conn{
		fd:      fd,
		ifname:  cfg.Interface,
		ifindex: ifindex,
		poll:    int(poll.Milliseconds()),
	}, nil
}

// Interface 接口名称
func (c *Conn) Interface() string { return c.ifname }

func (c *Conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// SendFrame 写入一帧。内核发送队列满时write阻塞。
func (c *Conn) SendFrame(ctx context.Context, f canframe.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isClosed() {
		return transport.Wrap("send", transport.ErrClosed)
	}
	buf, err := f.MarshalBinary()
	if err != nil {
		return transport.Wrap("send", err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	for {
		_, err = unix.Write(c.fd, buf)
		if err != unix.EINTR {
			break
		}
	}
	return transport.Wrap("send", err)
}

// ReceiveFrame 读取下一个数据帧，远程帧与错误帧被跳过
func (c *Conn) ReceiveFrame(ctx context.Context) (canframe.Frame, error) {
	buf := make([]byte, canframe.WireSize)

	for {
		if err := ctx.Err(); err != nil {
			return canframe.Frame{}, err
		}

		n, err := c.pollRead(buf)
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			return canframe.Frame{}, transport.Wrap("receive", err)
		}
		if n == 0 {
			continue
		}
		if n < canframe.WireSize {
			logger.Warnf("SocketCAN short read on %s: %d bytes", c.ifname, n)
			continue
		}

		if binary.LittleEndian.Uint32(buf[0:4])&(canframe.CanRtrFlag|canframe.CanErrFlag) != 0 {
			continue
		}
		var f canframe.Frame
		if err := f.UnmarshalBinary(buf); err != nil {
			logger.Warnf("SocketCAN dropping invalid frame on %s: %v", c.ifname, err)
			continue
		}
		return f, nil
	}
}

// pollRead 等待最多一个轮询间隔并读取一条记录，超时返回0。
// 整个过程持有读锁，Close不会在poll与read之间关闭fd。
func (c *Conn) pollRead(buf []byte) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, transport.ErrClosed
	}

	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, c.poll)
	if err != nil || n == 0 {
		return 0, err
	}
	if fds[0].Revents&unix.POLLIN == 0 {
		return 0, fmt.Errorf("poll revents %#x", fds[0].Revents)
	}
	return unix.Read(c.fd, buf)
}

// Close 关闭套接字
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}
