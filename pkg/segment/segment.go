package segment

import (
	"context"
	"fmt"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport"
)

// DataPerFrame 每帧携带的应用数据字节数
const DataPerFrame = canframe.MaxData

// MaxFrames 一个序列最多的数据帧数，由序号字段宽度决定
func MaxFrames(v canframe.ProtocolVersion) int {
	switch v {
	case canframe.VersionSeries:
		return 15
	case canframe.VersionStream:
		// 非末帧序号0..29，末帧使用保留值31
		return 31
	}
	return 0
}

// FrameCount 承载n字节所需的数据帧数
func FrameCount(n int) int {
	return (n + DataPerFrame - 1) / DataPerFrame
}

// Segmenter 按顺序惰性产生一个序列的所有帧，只能遍历一次。
// 遍历结束前调用方不得修改传入的缓冲区。
type Segmenter struct {
	v            canframe.ProtocolVersion
	addr         uint32
	buf          []byte
	count        int
	idx          int
	startPending bool
	err          error
}

// Segment 检查缓冲区长度并返回分段器
func Segment(v canframe.ProtocolVersion, buf []byte, addr uint32) (*Segmenter, error) {
	if !v.Valid() {
		return nil, canframe.ErrUnknownVersion
	}
	if len(buf) == 0 {
		return nil, ErrEmptyBuffer
	}
	n := FrameCount(len(buf))
	if limit := MaxFrames(v); n > limit {
		return nil, fmt.Errorf("%w: %d bytes need %d frames, limit is %d", ErrTooManySegments, len(buf), n, limit)
	}
	return &Segmenter{
		v:            v,
		addr:         addr,
		buf:          buf,
		count:        n,
		startPending: v == canframe.VersionSeries,
	}, nil
}

// DataFrames 数据帧数量
func (s *Segmenter) DataFrames() int { return s.count }

// Count 总帧数，series格式包含起始控制帧
func (s *Segmenter) Count() int {
	if s.v == canframe.VersionSeries {
		return s.count + 1
	}
	return s.count
}

// Remaining 尚未产生的帧数
func (s *Segmenter) Remaining() int {
	n := s.count - s.idx
	if s.startPending {
		n++
	}
	return n
}

// Err 编码过程中的错误
func (s *Segmenter) Err() error { return s.err }

// Next 返回下一帧，全部产生后返回false
func (s *Segmenter) Next() (canframe.Frame, bool) {
	if s.startPending {
		s.startPending = false
		ctrl := canframe.Control{Kind: canframe.KindStart, Count: uint8(s.count)}
		return s.emit(ctrl, nil)
	}
	if s.idx >= s.count {
		return canframe.Frame{}, false
	}

	off := s.idx * DataPerFrame
	end := min(off+DataPerFrame, len(s.buf))
	ctrl := canframe.Control{
		Kind:  canframe.KindData,
		Seq:   uint8(s.idx),
		Final: s.v == canframe.VersionStream && s.idx == s.count-1,
	}
	s.idx++
	return s.emit(ctrl, s.buf[off:end])
}

func (s *Segmenter) emit(ctrl canframe.Control, data []byte) (canframe.Frame, bool) {
	f, err := canframe.NewFrame(s.v, s.addr, ctrl, data)
	if err != nil {
		s.err = err
		s.idx = s.count
		return canframe.Frame{}, false
	}
	return f, true
}

// Frames 一次性产生全部帧
func Frames(v canframe.ProtocolVersion, buf []byte, addr uint32) ([]canframe.Frame, error) {
	s, err := Segment(v, buf, addr)
	if err != nil {
		return nil, err
	}
	out := make([]canframe.Frame, 0, s.Count())
	for f, ok := s.Next(); ok; f, ok = s.Next() {
		out = append(out, f)
	}
	return out, s.Err()
}

// Send 分段并按顺序发送整个缓冲区
func Send(ctx context.Context, tx transport.Sender, v canframe.ProtocolVersion, buf []byte, addr uint32) error {
	s, err := Segment(v, buf, addr)
	if err != nil {
		return err
	}
	for f, ok := s.Next(); ok; f, ok = s.Next() {
		if err := tx.SendFrame(ctx, f); err != nil {
			return transport.Wrap("send", err)
		}
	}
	return s.Err()
}

// SendAbort 发送错误控制帧，通知对端放弃正在接收的序列。仅series格式支持。
func SendAbort(ctx context.Context, tx transport.Sender, v canframe.ProtocolVersion, addr uint32) error {
	f, err := canframe.NewFrame(v, addr, canframe.Control{Kind: canframe.KindError}, nil)
	if err != nil {
		return err
	}
	return transport.Wrap("send", tx.SendFrame(ctx, f))
}
