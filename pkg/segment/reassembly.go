package segment

import (
	"context"
	"fmt"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport"
	"github.com/junbin-yang/cansoftbus-go/pkg/utils/logger"
)

// Policy 数据帧乱序时的处理策略
type Policy uint8

const (
	// PolicyAbort 放弃当前序列并返回SequenceError
	PolicyAbort Policy = iota
	// PolicyRestart 丢弃已收数据，回到等待起始状态
	PolicyRestart
)

func (p Policy) String() string {
	if p == PolicyRestart {
		return "restart"
	}
	return "abort"
}

// ParsePolicy 解析配置中的策略名称，空字符串返回PolicyAbort
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "abort":
		return PolicyAbort, nil
	case "restart":
		return PolicyRestart, nil
	}
	return PolicyAbort, fmt.Errorf("segment: unknown out-of-order policy %q", s)
}

// State 重组状态
type State uint8

const (
	StateAwaitingStart State = iota
	StateCollecting
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "AwaitingStart"
	case StateCollecting:
		return "Collecting"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Stats 重组计数
type Stats struct {
	Completed uint64
	Failed    uint64
	Restarted uint64
	Ignored   uint64
}

// Reassembler 单个序列的重组状态机，只允许一个goroutine驱动
type Reassembler struct {
	v        canframe.ProtocolVersion
	policy   Policy
	state    State
	expected int // series格式起始帧声明的帧数
	next     int
	buf      []byte
	stats    Stats
}

func NewReassembler(v canframe.ProtocolVersion, policy Policy) *Reassembler {
	return &Reassembler{v: v, policy: policy}
}

func (r *Reassembler) State() State { return r.state }
func (r *Reassembler) Stats() Stats { return r.stats }

// Reset 丢弃未完成的数据，回到等待起始状态
func (r *Reassembler) Reset() {
	r.reset(StateAwaitingStart)
}

func (r *Reassembler) reset(s State) {
	r.state = s
	r.expected = 0
	r.next = 0
	r.buf = nil
}

func (r *Reassembler) fail(err error) error {
	r.reset(StateFailed)
	r.stats.Failed++
	return err
}

// Feed 处理一帧。序列完成时返回重组后的缓冲区；出错时序列作废且不返回部分数据。
// 完成或失败后的下一帧会开始新的序列。
func (r *Reassembler) Feed(f canframe.Frame) ([]byte, error) {
	if r.state == StateComplete || r.state == StateFailed {
		r.reset(StateAwaitingStart)
	}

	ctrl, data, err := canframe.DecodePayload(r.v, f)
	if err != nil {
		return nil, r.fail(err)
	}

	switch ctrl.Kind {
	case canframe.KindStart:
		return nil, r.start(ctrl)
	case canframe.KindError:
		if r.state != StateCollecting {
			r.stats.Ignored++
			return nil, nil
		}
		return nil, r.fail(ErrSeriesAborted)
	}
	return r.data(ctrl, data)
}

func (r *Reassembler) start(ctrl canframe.Control) error {
	if r.state == StateCollecting {
		// 接收中收到新的起始帧：重新开始
		logger.Debugf("series restarted after %d/%d frames", r.next, r.expected)
		r.stats.Restarted++
	}
	r.reset(StateAwaitingStart)
	if ctrl.Count == 0 {
		return r.fail(fmt.Errorf("%w: declared frame count 0", ErrMalformedSeries))
	}
	r.expected = int(ctrl.Count)
	r.buf = make([]byte, 0, r.expected*DataPerFrame)
	r.state = StateCollecting
	return nil
}

func (r *Reassembler) data(ctrl canframe.Control, data []byte) ([]byte, error) {
	if r.state == StateAwaitingStart {
		if r.v == canframe.VersionSeries {
			r.stats.Ignored++
			return nil, nil
		}
		// stream格式没有起始帧，首个数据帧即开始序列
		r.state = StateCollecting
	}

	if ctrl.Size == 0 {
		return nil, r.fail(fmt.Errorf("%w: data frame with zero payload", ErrMalformedSeries))
	}

	if !ctrl.Final && int(ctrl.Seq) != r.next {
		serr := &SequenceError{Expected: uint8(r.next), Got: ctrl.Seq}
		if r.policy != PolicyRestart {
			return nil, r.fail(serr)
		}
		logger.Debugf("%v, restarting series", serr)
		r.stats.Restarted++
		r.reset(StateAwaitingStart)
		if r.v == canframe.VersionStream && ctrl.Seq == 0 {
			return r.data(ctrl, data)
		}
		return nil, nil
	}

	if r.v == canframe.VersionStream && !ctrl.Final && r.next >= MaxFrames(r.v)-1 {
		return nil, r.fail(fmt.Errorf("%w: series exceeds %d frames", ErrTooManySegments, MaxFrames(r.v)))
	}

	r.buf = append(r.buf, data...)
	r.next++

	done := ctrl.Final
	if r.v == canframe.VersionSeries {
		done = r.next == r.expected
	}
	if !done {
		return nil, nil
	}
	out := r.buf
	r.reset(StateComplete)
	r.stats.Completed++
	return out, nil
}

// Reassemble 阻塞地从src读取帧直到一个序列完成或失败。
// accept不为nil时，只处理accept返回true的帧（例如只接收本会话地址的帧）。
func Reassemble(ctx context.Context, src transport.Receiver, v canframe.ProtocolVersion, policy Policy, accept func(canframe.Frame) bool) ([]byte, error) {
	r := NewReassembler(v, policy)
	for {
		f, err := src.ReceiveFrame(ctx)
		if err != nil {
			return nil, transport.Wrap("receive", err)
		}
		if accept != nil && !accept(f) {
			continue
		}
		buf, err := r.Feed(f)
		if err != nil {
			return nil, err
		}
		if buf != nil {
			return buf, nil
		}
	}
}
