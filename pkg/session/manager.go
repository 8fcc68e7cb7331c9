package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/segment"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport"
	"github.com/junbin-yang/cansoftbus-go/pkg/utils/logger"
)

// MinServerID 服务器ID下限。应答地址的bit 21-28必须非零，才不会与会话地址冲突。
const MinServerID = 1 << 3

// ManagerConfig 服务器端配置
type ManagerConfig struct {
	ServerID         uint32
	InitialSessionID uint32
	Version          canframe.ProtocolVersion
	Policy           segment.Policy
}

// DefaultManagerConfig 默认配置
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ServerID:         DefaultServerID,
		InitialSessionID: DefaultInitialSessionID,
		Version:          canframe.DefaultVersion,
		Policy:           segment.PolicyAbort,
	}
}

func (c ManagerConfig) validate() error {
	if c.ServerID < MinServerID || c.ServerID > canframe.ReplyServerMask {
		return fmt.Errorf("session: server id %#x out of range [%#x, %#x]", c.ServerID, MinServerID, canframe.ReplyServerMask)
	}
	if c.InitialSessionID > MaxSessionID {
		return fmt.Errorf("session: initial session id %#x exceeds %#x", c.InitialSessionID, MaxSessionID)
	}
	if !c.Version.Valid() {
		return canframe.ErrUnknownVersion
	}
	return nil
}

// Manager 服务器端会话管理器。
// 会话表把会话ID映射到各自的重组状态，多个客户端的序列可以在总线上交错。
// HandleFrame/Serve只能由一个goroutine调用；查询与发送方法可并发调用。
type Manager struct {
	cfg      ManagerConfig
	tx       transport.Transport
	listener MessageListener

	// 会话映射（sessionID -> Session）
	sessionMap map[uint32]*Session

	// 会话ID计数器，只增不减
	nextSessionID uint32

	running bool
	mu      sync.RWMutex
}

// NewManager 创建会话管理器
func NewManager(cfg ManagerConfig, tx transport.Transport, listener MessageListener) (*Manager, error) {
	if tx == nil {
		return nil, errors.New("session: nil transport")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		listener = nopListener{}
	}
	return &Manager{
		cfg:           cfg,
		tx:            tx,
		listener:      listener,
		sessionMap:    make(map[uint32]*Session),
		nextSessionID: cfg.InitialSessionID,
	}, nil
}

// Config 返回管理器配置
func (m *Manager) Config() ManagerConfig { return m.cfg }

// Allocate 为客户端标签分配下一个会话ID。ID只递增，不回收。
func (m *Manager) Allocate(tag uint32) (*Session, error) {
	if tag > MaxClientTag {
		return nil, ErrInvalidClientTag
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nextSessionID > MaxSessionID {
		return nil, ErrSessionIDsExhausted
	}
	id := m.nextSessionID
	m.nextSessionID++

	s := newSession(tag, id, m.cfg.Version, m.cfg.Policy)
	s.SetState(StateNegotiating)
	m.sessionMap[id] = s
	return s, nil
}

func (m *Manager) removeSession(sessionID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessionMap, sessionID)
}

// GetSession 获取会话
func (m *Manager) GetSession(sessionID uint32) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessionMap[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Sessions 按会话ID排序的会话快照
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessionMap))
	for _, s := range m.sessionMap {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].GetSessionID() < out[j].GetSessionID() })
	return out
}

// SessionCount 当前会话数
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessionMap)
}

// HandleFrame 处理一帧：公告帧走握手流程，会话地址的帧交给对应会话的重组器
func (m *Manager) HandleFrame(ctx context.Context, f canframe.Frame) error {
	if canframe.IsAnnouncement(f.ID) {
		return m.handleAnnouncement(ctx, f)
	}
	if !canframe.IsSessionAddress(f.ID) {
		return fmt.Errorf("%w: address %#x", ErrSessionNotFound, f.ID)
	}

	fields := canframe.DecodeAddress(f.ID)
	s, err := m.GetSession(fields.Channel)
	if err != nil || s.GetClientTag() != fields.Tag || !s.IsBound() {
		return fmt.Errorf("%w: address %#x", ErrSessionNotFound, f.ID)
	}

	buf, err := s.feed(f)
	if err != nil {
		m.listener.OnSeriesFailed(fields.Channel, err)
		return fmt.Errorf("session %#x: %w", fields.Channel, err)
	}
	if buf != nil {
		logger.Debugf("Session %#x received %d bytes", fields.Channel, len(buf))
		m.listener.OnMessage(fields.Channel, buf)
	}
	return nil
}

// handleAnnouncement 校验公告、分配会话ID并发送应答
func (m *Manager) handleAnnouncement(ctx context.Context, f canframe.Frame) error {
	tag, err := ParseAnnouncement(f)
	if err != nil {
		return err
	}

	s, err := m.Allocate(tag)
	if err != nil {
		return err
	}
	sessionID := s.GetSessionID()

	reply, err := NewReply(m.cfg.ServerID, sessionID, tag)
	if err != nil {
		m.removeSession(sessionID)
		return err
	}
	if err := m.tx.SendFrame(ctx, reply); err != nil {
		// ID已消耗，不回收
		m.removeSession(sessionID)
		return transport.Wrap("send", err)
	}

	s.SetState(StateBound)
	logger.Infof("Session %#x allocated for client tag %#x", sessionID, tag)
	m.listener.OnSessionBound(s)
	return nil
}

// Serve 运行接收循环直到ctx取消或传输关闭。单次读取失败只记录日志，循环继续。
func (m *Manager) Serve(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrManagerAlreadyStarted
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	logger.Infof("Session manager listening, server id %#x, protocol %s", m.cfg.ServerID, m.cfg.Version)

	for {
		f, err := m.tx.ReceiveFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, transport.ErrClosed) {
				logger.Info("Transport closed, session manager stopped")
				return err
			}
			logger.Errorf("Failed to receive frame: %v", err)
			continue
		}

		if err := m.HandleFrame(ctx, f); err != nil {
			switch {
			case errors.Is(err, ErrSessionNotFound):
				logger.Debugf("Dropping frame %s: %v", f, err)
			case errors.Is(err, ErrNotAnAnnouncement):
				logger.Warnf("Rejected announcement %s: %v", f, err)
			default:
				logger.Warnf("Frame %s: %v", f, err)
			}
		}
	}
}

// IsRunning 接收循环是否在运行
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Send 向已绑定的客户端发送一条消息
func (m *Manager) Send(ctx context.Context, sessionID uint32, data []byte) error {
	s, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}
	if !s.IsBound() {
		return ErrNotBound
	}
	return segment.Send(ctx, m.tx, m.cfg.Version, data, s.Address())
}
