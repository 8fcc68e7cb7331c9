package session

import (
	"context"
	"errors"
	"sync"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/segment"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport"
	"github.com/junbin-yang/cansoftbus-go/pkg/utils/logger"
)

// ClientConfig 客户端配置
type ClientConfig struct {
	Version canframe.ProtocolVersion
	Policy  segment.Policy
	// ServerID 非零时只接受该服务器的应答
	ServerID uint32
}

// Client 客户端一侧的会话：Unbound -> Negotiating -> Bound
type Client struct {
	cfg     ClientConfig
	tx      transport.Transport
	session *Session

	// 接收只允许一个goroutine
	recvMu sync.Mutex

	// 绑定后迟到的应答（超时重试产生的多余会话ID）
	superseded []uint32
	mu         sync.Mutex
}

// NewClient 创建客户端
func NewClient(tag uint32, tx transport.Transport, cfg ClientConfig) (*Client, error) {
	if tag > MaxClientTag {
		return nil, ErrInvalidClientTag
	}
	if tx == nil {
		return nil, errors.New("session: nil transport")
	}
	if cfg.Version == 0 {
		cfg.Version = canframe.DefaultVersion
	}
	if !cfg.Version.Valid() {
		return nil, canframe.ErrUnknownVersion
	}
	return &Client{
		cfg:     cfg,
		tx:      tx,
		session: newSession(tag, 0, cfg.Version, cfg.Policy),
	}, nil
}

// Session 客户端会话
func (c *Client) Session() *Session { return c.session }

// Bind 发送公告并阻塞等待应答。
// 标签或服务器不匹配的应答属于其他客户端，直接跳过。本方法不设超时，由ctx控制。
func (c *Client) Bind(ctx context.Context) (*Session, error) {
	tag := c.session.GetClientTag()
	announce, err := NewAnnouncement(tag)
	if err != nil {
		return nil, err
	}

	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	c.session.SetState(StateNegotiating)
	if err := c.tx.SendFrame(ctx, announce); err != nil {
		c.session.SetState(StateUnbound)
		return nil, transport.Wrap("send", err)
	}
	logger.Debugf("Client %#x announced, waiting for reply", tag)

	for {
		f, err := c.tx.ReceiveFrame(ctx)
		if err != nil {
			c.session.SetState(StateUnbound)
			return nil, transport.Wrap("receive", err)
		}

		serverID, sessionID, replyTag, err := ParseReply(f)
		if err != nil || replyTag != tag {
			continue
		}
		if c.cfg.ServerID != 0 && serverID != c.cfg.ServerID {
			logger.Debugf("Client %#x ignoring reply from server %#x", tag, serverID)
			continue
		}
		if sessionID > MaxSessionID {
			logger.Warnf("Client %#x ignoring reply with session id %#x", tag, sessionID)
			continue
		}

		c.session.bind(sessionID)
		logger.Infof("Client %#x bound to session %#x (server %#x)", tag, sessionID, serverID)
		return c.session, nil
	}
}

// Send 在已绑定的会话地址上发送一条消息
func (c *Client) Send(ctx context.Context, data []byte) error {
	if !c.session.IsBound() {
		return ErrNotBound
	}
	return segment.Send(ctx, c.tx, c.cfg.Version, data, c.session.Address())
}

// Receive 阻塞直到本会话地址上的一个序列重组完成。其他地址的帧被忽略。
func (c *Client) Receive(ctx context.Context) ([]byte, error) {
	if !c.session.IsBound() {
		return nil, ErrNotBound
	}

	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	addr := c.session.Address()
	for {
		f, err := c.tx.ReceiveFrame(ctx)
		if err != nil {
			return nil, transport.Wrap("receive", err)
		}
		if f.ID != addr || !f.Extended {
			c.noteLateReply(f)
			continue
		}
		buf, err := c.session.feed(f)
		if err != nil {
			return nil, err
		}
		if buf != nil {
			return buf, nil
		}
	}
}

// noteLateReply 记录发给本客户端标签、但会话ID不同的应答。
// 这些会话在服务器端仍然存在，只是不再被使用。
func (c *Client) noteLateReply(f canframe.Frame) {
	_, sessionID, tag, err := ParseReply(f)
	if err != nil || tag != c.session.GetClientTag() || sessionID == c.session.GetSessionID() {
		return
	}
	logger.Warnf("Client %#x bound to session %#x, ignoring late reply for session %#x", tag, c.session.GetSessionID(), sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.superseded = append(c.superseded, sessionID)
}

// SupersededSessions 绑定后收到的其他会话ID
func (c *Client) SupersededSessions() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint32(nil), c.superseded...)
}

// Close 关闭底层传输
func (c *Client) Close() error {
	c.session.SetState(StateUnbound)
	return c.tx.Close()
}
