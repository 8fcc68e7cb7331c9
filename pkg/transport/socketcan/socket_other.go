//go:build !linux

package socketcan

import (
	"context"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport"
)

// Conn 非Linux平台上的占位类型
type Conn struct{}

var _ transport.Transport = (*Conn)(nil)

// Open 非Linux平台总是返回ErrUnsupported
func Open(cfg Config) (*Conn, error) {
	return nil, ErrUnsupported
}

func (c *Conn) Interface() string { return "" }

func (c *Conn) SendFrame(context.Context, canframe.Frame) error {
	return transport.Wrap("send", ErrUnsupported)
}

func (c *Conn) ReceiveFrame(context.Context) (canframe.Frame, error) {
	return canframe.Frame{}, transport.Wrap("receive", ErrUnsupported)
}

func (c *Conn) Close() error { return nil }
