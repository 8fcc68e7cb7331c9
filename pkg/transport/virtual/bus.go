// Package virtual 提供进程内的虚拟CAN总线，语义等同于vcan：
// 每帧广播给除发送者外的所有端点，同一发送者的帧保持顺序。
package virtual

import (
	"context"
	"sync"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport"
)

// DefaultDepth 每个端点的接收队列深度
const DefaultDepth = 256

// Filter 在广播前处理帧，返回false时丢弃该帧（用于模拟丢帧或篡改）
type Filter func(from string, f canframe.Frame) (canframe.Frame, bool)

// Bus 虚拟总线
type Bus struct {
	mu        sync.RWMutex
	endpoints map[*Endpoint]struct{}
	filter    Filter
	depth     int
}

// NewBus 创建虚拟总线
func NewBus() *Bus {
	return NewBusWithDepth(DefaultDepth)
}

// NewBusWithDepth 创建指定队列深度的虚拟总线
func NewBusWithDepth(depth int) *Bus {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Bus{
		endpoints: make(map[*Endpoint]struct{}),
		depth:     depth,
	}
}

// SetFilter 设置广播过滤器，nil表示不过滤
func (b *Bus) SetFilter(fn Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = fn
}

// Attach 接入一个新端点
func (b *Bus) Attach(name string) *Endpoint {
	ep := &Endpoint{
		bus:  b,
		name: name,
		rx:   make(chan canframe.Frame, b.depth),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.endpoints[ep] = struct{}{}
	b.mu.Unlock()
	return ep
}

// Len 当前接入的端点数
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.endpoints)
}

func (b *Bus) detach(ep *Endpoint) {
	b.mu.Lock()
	delete(b.endpoints, ep)
	b.mu.Unlock()
}

func (b *Bus) peers(from *Endpoint) ([]*Endpoint, Filter) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Endpoint, 0, len(b.endpoints))
	for ep := range b.endpoints {
		if ep != from {
			out = append(out, ep)
		}
	}
	return out, b.filter
}

// Endpoint 总线上的一个收发端点，实现transport.Transport
type Endpoint struct {
	bus       *Bus
	name      string
	rx        chan canframe.Frame
	done      chan struct{}
	closeOnce sync.Once
}

var _ transport.Transport = (*Endpoint)(nil)

// Name 端点名称
func (e *Endpoint) Name() string { return e.name }

// SendFrame 广播一帧。对端队列满时阻塞，相当于链路层背压。
func (e *Endpoint) SendFrame(ctx context.Context, f canframe.Frame) error {
	select {
	case <-e.done:
		return transport.Wrap("send", transport.ErrClosed)
	default:
	}
	if err := f.Validate(); err != nil {
		return transport.Wrap("send", err)
	}

	peers, filter := e.bus.peers(e)
	if filter != nil {
		var ok bool
		if f, ok = filter(e.name, f); !ok {
			return nil
		}
	}
	for _, p := range peers {
		select {
		case p.rx <- f:
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ReceiveFrame 阻塞接收下一帧
func (e *Endpoint) ReceiveFrame(ctx context.Context) (canframe.Frame, error) {
	select {
	case f := <-e.rx:
		return f, nil
	case <-e.done:
		return canframe.Frame{}, transport.Wrap("receive", transport.ErrClosed)
	case <-ctx.Done():
		return canframe.Frame{}, ctx.Err()
	}
}

// Close 从总线断开
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.bus.detach(e)
		close(e.done)
	})
	return nil
}
