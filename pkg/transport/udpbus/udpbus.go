// Package udpbus 通过UDP组播在多个进程之间模拟一条CAN总线
package udpbus

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport"
	"github.com/junbin-yang/cansoftbus-go/pkg/utils/logger"
)

const (
	DefaultGroup        = "239.255.67.78"
	DefaultPort         = 47290
	DefaultTTL          = 1
	DefaultPollInterval = 100 * time.Millisecond
)

// Config 组播总线配置
type Config struct {
	Group        string // 组播地址
	Port         int
	Interface    string // 为空时由系统选择
	TTL          int
	PollInterval time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Group:        DefaultGroup,
		Port:         DefaultPort,
		TTL:          DefaultTTL,
		PollInterval: DefaultPollInterval,
	}
}

// Conn 加入组播组的UDP套接字
type Conn struct {
	conn  *net.UDPConn
	pc    *ipv4.PacketConn
	group *net.UDPAddr
	nonce uint64
	poll  time.Duration

	closeOnce sync.Once
	rmu       sync.Mutex
}

var _ transport.Transport = (*Conn)(nil)

// Open 绑定端口并加入组播组。回环开启，本机其他进程可以收到；自身发出的帧按发送方标识丢弃。
func Open(cfg Config) (*Conn, error) {
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	groupIP := net.ParseIP(cfg.Group).To4()
	if groupIP == nil || !groupIP.IsMulticast() {
		return nil, fmt.Errorf("udpbus: %q is not an IPv4 multicast address", cfg.Group)
	}
	group := &net.UDPAddr{IP: groupIP, Port: cfg.Port}

	var ifi *net.Interface
	if cfg.Interface != "" {
		var err error
		if ifi, err = net.InterfaceByName(cfg.Interface); err != nil {
			return nil, fmt.Errorf("udpbus: interface %s: %w", cfg.Interface, err)
		}
	}

	lc := net.ListenConfig{Control: reuseAddr}
	pconn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("udpbus: listen: %w", err)
	}
	conn := pconn.(*net.UDPConn)

	pc := ipv4.NewPacketConn(conn)
	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: groupIP}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("udpbus: join group %s: %w", cfg.Group, err)
	}
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			conn.Close()
			return nil, fmt.Errorf("udpbus: set multicast interface: %w", err)
		}
	}
	// 设置组播TTL
	if err := pc.SetMulticastTTL(cfg.TTL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("udpbus: set multicast ttl: %w", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("udpbus: set multicast loopback: %w", err)
	}

	c := &Conn{
		conn:  conn,
		pc:    pc,
		group: group,
		nonce: rand.Uint64(),
		poll:  cfg.PollInterval,
	}
	logger.Infof("UDP CAN bus joined %s (sender %016x)", group, c.nonce)
	return c, nil
}

// LocalAddr 本地地址
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// SendFrame 以一个数据报发送一帧
func (c *Conn) SendFrame(ctx context.Context, f canframe.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf, err := EncodeDatagram(c.nonce, f)
	if err != nil {
		return transport.Wrap("send", err)
	}
	if _, err := c.pc.WriteTo(buf, nil, c.group); err != nil {
		return transport.Wrap("send", closedOr(err))
	}
	return nil
}

// ReceiveFrame 接收下一帧，自身发出的帧与无法解析的数据报被丢弃
func (c *Conn) ReceiveFrame(ctx context.Context) (canframe.Frame, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	buf := make([]byte, DatagramSize+1)
	for {
		if err := ctx.Err(); err != nil {
			return canframe.Frame{}, err
		}
		deadline := time.Now().Add(c.poll)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return canframe.Frame{}, transport.Wrap("receive", closedOr(err))
		}

		n, _, src, err := c.pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return canframe.Frame{}, transport.Wrap("receive", closedOr(err))
		}

		nonce, f, err := DecodeDatagram(buf[:n])
		if err != nil {
			logger.Debugf("udpbus: dropping datagram from %v: %v", src, err)
			continue
		}
		if nonce == c.nonce {
			continue
		}
		return f, nil
	}
}

// Close 离开组播组并关闭套接字
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func closedOr(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return transport.ErrClosed
	}
	return err
}
