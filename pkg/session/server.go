package session

// MessageListener 会话事件监听器
// 回调在服务器接收循环中同步调用，不应长时间阻塞
type MessageListener interface {
	// OnSessionBound 新客户端获得会话ID并已发送应答
	OnSessionBound(s *Session)

	// OnMessage 一个序列重组完成
	OnMessage(sessionID uint32, data []byte)

	// OnSeriesFailed 序列因乱序、中止或格式错误被放弃
	OnSeriesFailed(sessionID uint32, err error)
}

// ListenerFuncs 以函数字段实现MessageListener，未设置的回调被忽略
type ListenerFuncs struct {
	Bound   func(s *Session)
	Message func(sessionID uint32, data []byte)
	Failed  func(sessionID uint32, err error)
}

func (l *ListenerFuncs) OnSessionBound(s *Session) {
	if l.Bound != nil {
		l.Bound(s)
	}
}

func (l *ListenerFuncs) OnMessage(sessionID uint32, data []byte) {
	if l.Message != nil {
		l.Message(sessionID, data)
	}
}

func (l *ListenerFuncs) OnSeriesFailed(sessionID uint32, err error) {
	if l.Failed != nil {
		l.Failed(sessionID, err)
	}
}

type nopListener struct{}

func (nopListener) OnSessionBound(*Session)      {}
func (nopListener) OnMessage(uint32, []byte)     {}
func (nopListener) OnSeriesFailed(uint32, error) {}
