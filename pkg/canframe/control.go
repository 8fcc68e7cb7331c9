package canframe

import "fmt"

// ProtocolVersion 线上格式版本。两种格式互不兼容，收发两端必须一致。
type ProtocolVersion uint8

const (
	// VersionStream 控制字节 = seq<<3 | size，seq为31表示末帧，无起始控制帧
	VersionStream ProtocolVersion = iota + 1
	// VersionSeries 控制字节高4位为帧类型，低4位为帧数或序号，先发起始控制帧
	VersionSeries
)

// DefaultVersion 默认线上格式
const DefaultVersion = VersionStream

func (v ProtocolVersion) String() string {
	switch v {
	case VersionStream:
		return "stream"
	case VersionSeries:
		return "series"
	default:
		return fmt.Sprintf("version(%d)", uint8(v))
	}
}

// Valid 是否为已知版本
func (v ProtocolVersion) Valid() bool {
	return v == VersionStream || v == VersionSeries
}

// ParseProtocolVersion 解析配置中的版本名称，空字符串返回默认版本
func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	switch s {
	case "", "stream":
		return VersionStream, nil
	case "series":
		return VersionSeries, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownVersion, s)
	}
}

// Kind 帧类型
type Kind uint8

const (
	KindData Kind = iota
	KindStart
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindStart:
		return "start"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// series格式的类型半字节
const (
	NibbleStart = 0xF
	NibbleData  = 0xC
	NibbleError = 0x7
)

// stream格式常量
const (
	SeqShift  = 3
	SizeMask  = 0x7
	FinalSeq  = 31
	MaxData   = 7 // 每帧数据字节数（8字节减去控制字节）
	seriesMax = 0xF
)

// Control 解码后的控制字节
type Control struct {
	Kind  Kind
	Seq   uint8 // 数据帧序号
	Count uint8 // 起始帧声明的帧数
	Size  uint8 // 数据字节数
	Final bool  // stream格式末帧标记
}

// EncodeControl 按版本编码控制字节
func EncodeControl(v ProtocolVersion, c Control) (byte, error) {
	switch v {
	case VersionSeries:
		switch c.Kind {
		case KindStart:
			if c.Count > seriesMax {
				return 0, fmt.Errorf("%w: count %d", ErrMalformedFrame, c.Count)
			}
			return NibbleStart<<4 | c.Count, nil
		case KindData:
			if c.Seq > seriesMax {
				return 0, fmt.Errorf("%w: seq %d", ErrMalformedFrame, c.Seq)
			}
			return NibbleData<<4 | c.Seq, nil
		case KindError:
			return NibbleError << 4, nil
		}
		return 0, ErrUnsupportedKind
	case VersionStream:
		if c.Kind != KindData {
			return 0, ErrUnsupportedKind
		}
		if c.Size > SizeMask {
			return 0, fmt.Errorf("%w: size %d", ErrMalformedFrame, c.Size)
		}
		seq := c.Seq
		if c.Final {
			seq = FinalSeq
		} else if seq >= FinalSeq {
			return 0, fmt.Errorf("%w: seq %d", ErrMalformedFrame, c.Seq)
		}
		return seq<<SeqShift | c.Size, nil
	}
	return 0, ErrUnknownVersion
}

// DecodeControl 按版本解码控制字节
func DecodeControl(v ProtocolVersion, b byte) (Control, error) {
	switch v {
	case VersionSeries:
		low := b & 0xF
		switch b >> 4 {
		case NibbleStart:
			return Control{Kind: KindStart, Count: low}, nil
		case NibbleData:
			return Control{Kind: KindData, Seq: low}, nil
		case NibbleError:
			return Control{Kind: KindError}, nil
		}
		return Control{}, fmt.Errorf("%w: unknown type nibble %#x", ErrMalformedFrame, b>>4)
	case VersionStream:
		seq := b >> SeqShift
		return Control{
			Kind:  KindData,
			Seq:   seq,
			Size:  b & SizeMask,
			Final: seq == FinalSeq,
		}, nil
	}
	return Control{}, ErrUnknownVersion
}

// NewFrame 构造一帧：控制字节加最多7字节数据。stream格式下Size取自data长度。
func NewFrame(v ProtocolVersion, addr uint32, c Control, data []byte) (Frame, error) {
	if len(data) > MaxData {
		return Frame{}, ErrPayloadTooLarge
	}
	c.Size = uint8(len(data))
	b, err := EncodeControl(v, c)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{ID: addr & canEffMask, Extended: true, Len: uint8(1 + len(data))}
	f.Data[0] = b
	copy(f.Data[1:], data)
	return f, nil
}

// DecodePayload 拆出控制字节与数据。stream格式下校验 Len-1 == ctrl&0x7。
func DecodePayload(v ProtocolVersion, f Frame) (Control, []byte, error) {
	if f.Len == 0 || f.Len > MaxLen {
		return Control{}, nil, fmt.Errorf("%w: dlc %d", ErrMalformedFrame, f.Len)
	}
	c, err := DecodeControl(v, f.Data[0])
	if err != nil {
		return Control{}, nil, err
	}
	n := f.Len - 1
	if v == VersionStream && n != c.Size {
		return Control{}, nil, fmt.Errorf("%w: dlc %d, declared size %d", ErrMalformedFrame, f.Len, c.Size)
	}
	c.Size = n
	return c, f.Data[1:f.Len], nil
}
