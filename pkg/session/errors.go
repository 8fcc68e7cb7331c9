package session

import "errors"

var (
	// 握手相关错误
	ErrNotAnAnnouncement = errors.New("session: frame is not a new-client announcement")
	ErrNotAReply         = errors.New("session: frame is not a handshake reply")
	ErrHandshakeTimeout  = errors.New("session: handshake timed out")
	ErrInvalidClientTag  = errors.New("session: client tag out of range")

	// 会话表相关错误
	ErrSessionNotFound     = errors.New("session: session not found")
	ErrSessionIDsExhausted = errors.New("session: session ID space exhausted")
	ErrNotBound            = errors.New("session: session not bound")

	// 状态错误
	ErrManagerAlreadyStarted = errors.New("session: manager already started")
)
