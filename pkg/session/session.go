package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/segment"
)

// State 会话状态
type State int

const (
	StateUnbound     State = iota // 未绑定
	StateNegotiating              // 握手中
	StateBound                    // 已分配会话ID
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "Unbound"
	case StateNegotiating:
		return "Negotiating"
	case StateBound:
		return "Bound"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session 一个客户端与服务器之间的会话
type Session struct {
	// 会话标识
	ClientTag uint32 // 握手时客户端提供的标签
	SessionID uint32 // 服务器分配的会话ID

	// 会话状态
	State State

	// 时间戳
	CreatedAt  time.Time
	LastActive time.Time

	// 计数
	MessagesReceived uint64
	SeriesFailed     uint64

	// 重组状态，只由接收循环访问；stats是每帧处理后的快照
	reassembler *segment.Reassembler
	stats       segment.Stats

	mu sync.RWMutex
}

func newSession(tag, sessionID uint32, v canframe.ProtocolVersion, policy segment.Policy) *Session {
	now := time.Now()
	return &Session{
		ClientTag:   tag,
		SessionID:   sessionID,
		State:       StateUnbound,
		CreatedAt:   now,
		LastActive:  now,
		reassembler: segment.NewReassembler(v, policy),
	}
}

// Address 会话数据帧使用的地址
func (s *Session) Address() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return canframe.EncodeAddress(s.SessionID, s.ClientTag)
}

// GetSessionID 获取会话ID
func (s *Session) GetSessionID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SessionID
}

// GetClientTag 获取客户端标签
func (s *Session) GetClientTag() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ClientTag
}

// GetState 获取会话状态
func (s *Session) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// SetState 设置会话状态
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = state
}

func (s *Session) bind(sessionID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SessionID = sessionID
	s.State = StateBound
	s.LastActive = time.Now()
}

// IsBound 是否已绑定
func (s *Session) IsBound() bool {
	return s.GetState() == StateBound
}

// GetLastActive 获取最后活跃时间
func (s *Session) GetLastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastActive
}

// Counters 返回收到的消息数与失败的序列数
func (s *Session) Counters() (messages, failed uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MessagesReceived, s.SeriesFailed
}

// ReassemblyStats 重组器计数
func (s *Session) ReassemblyStats() segment.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// feed 将一帧交给该会话的重组器
func (s *Session) feed(f canframe.Frame) ([]byte, error) {
	buf, err := s.reassembler.Feed(f)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActive = time.Now()
	s.stats = s.reassembler.Stats()
	if err != nil {
		s.SeriesFailed++
	} else if buf != nil {
		s.MessagesReceived++
	}
	return buf, err
}

func (s *Session) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("Session[ID=%#x, Tag=%#x, State=%s]", s.SessionID, s.ClientTag, s.State)
}
