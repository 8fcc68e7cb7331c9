//go:build linux

package socketcan

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport"
)

// newPairConn 用socketpair代替CAN套接字，peer端写入的记录由Conn读取
func newPairConn(t *testing.T) (*Conn, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Skipf("socketpair unavailable: %v", err)
	}
	t.Cleanup(func() { unix.Close(fds[1]) })
	return &Conn{fd: fds[0], ifname: "pair", poll: 10}, fds[1]
}

func writeRecord(t *testing.T, fd int, f canframe.Frame, flags uint32) {
	t.Helper()
	buf, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	buf[3] |= byte(flags >> 24)
	if _, err := unix.Write(fd, buf); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestReceiveFrameSkipsRemoteAndErrorFrames(t *testing.T) {
	c, peer := newPairConn(t)
	defer c.Close()

	rtr, _ := canframe.NewRaw(0x100, nil)
	errFrame, _ := canframe.NewRaw(0x101, []byte{1})
	want, _ := canframe.NewRaw(0x1004BA, []byte{0xFF, 1, 2})
	writeRecord(t, peer, rtr, canframe.CanRtrFlag)
	writeRecord(t, peer, errFrame, canframe.CanErrFlag)
	writeRecord(t, peer, want, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := c.ReceiveFrame(ctx)
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestReceiveFrameHonoursContext(t *testing.T) {
	c, _ := newPairConn(t)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.ReceiveFrame(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestCloseDuringReceive(t *testing.T) {
	c, _ := newPairConn(t)

	done := make(chan error, 1)
	go func() {
		_, err := c.ReceiveFrame(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, transport.ErrClosed) {
			t.Fatalf("err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ReceiveFrame did not return after Close")
	}

	if err := c.SendFrame(context.Background(), canframe.Frame{}); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("SendFrame after Close: %v", err)
	}
}
