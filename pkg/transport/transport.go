package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
)

var (
	// ErrTransport 底层发送/接收失败
	ErrTransport = errors.New("transport error")
	// ErrClosed 传输已关闭
	ErrClosed = errors.New("transport closed")
)

// Sender 发送单帧，阻塞直到帧被链路层接收
type Sender interface {
	SendFrame(ctx context.Context, f canframe.Frame) error
}

// Receiver 阻塞接收单帧
type Receiver interface {
	ReceiveFrame(ctx context.Context) (canframe.Frame, error)
}

// Transport 由链路层提供的单帧收发原语
type Transport interface {
	Sender
	Receiver
	Close() error
}

// Error 包装底层收发错误，errors.Is(err, ErrTransport) 为真
type Error struct {
	Op  string // "send" 或 "receive"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTransport }

// Wrap 将err包装为*Error；nil、已包装的错误和上下文错误原样返回
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Op: op, Err: err}
}
