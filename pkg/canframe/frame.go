package canframe

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// 经典CAN帧参数
const (
	MaxLen     = 8          // 单帧最大载荷
	MaxStdID   = 0x7FF      // 11位标准帧ID上限
	MaxExtID   = 0x1FFFFFFF // 29位扩展帧ID上限
	WireSize   = 16         // SocketCAN struct can_frame 长度
	CanEffFlag = 0x80000000 // 扩展帧标志
	CanRtrFlag = 0x40000000 // 远程帧标志
	CanErrFlag = 0x20000000 // 错误帧标志
	canEffMask = 0x1FFFFFFF
	canStdMask = 0x7FF
)

// Frame 一个经典CAN数据帧，接收后不再修改
type Frame struct {
	ID       uint32 // 11位或29位标识符，不含标志位
	Extended bool   // 是否为29位扩展帧
	Len      uint8  // 有效载荷长度 0..8
	Data     [MaxLen]byte
}

// Payload 返回有效载荷
func (f Frame) Payload() []byte {
	n := f.Len
	if n > MaxLen {
		n = MaxLen
	}
	return f.Data[:n]
}

// Validate 检查长度与标识符范围
func (f Frame) Validate() error {
	if f.Len > MaxLen {
		return ErrInvalidLength
	}
	if f.Extended {
		if f.ID > MaxExtID {
			return ErrInvalidID
		}
	} else if f.ID > MaxStdID {
		return ErrInvalidID
	}
	return nil
}

// MarshalBinary 编码为Linux SocketCAN的struct can_frame布局（16字节，小端）
//
//	0..3  can_id（含EFF/RTR/ERR标志）
//	4     can_dlc
//	5..7  填充
//	8..15 数据
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, WireSize)
	f.put(buf)
	return buf, nil
}

func (f Frame) put(buf []byte) {
	id := f.ID
	if f.Extended {
		id |= CanEffFlag
	}
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Len
	buf[5], buf[6], buf[7] = 0, 0, 0
	copy(buf[8:16], f.Data[:])
}

// UnmarshalBinary 从struct can_frame布局解码
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < WireSize {
		return fmt.Errorf("canframe: need %d bytes, got %d", WireSize, len(data))
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	f.Extended = id&CanEffFlag != 0
	if f.Extended {
		f.ID = id & canEffMask
	} else {
		f.ID = id & canStdMask
	}
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}

// String 以candump风格输出，例如 "120004BA#FF01"
func (f Frame) String() string {
	var b strings.Builder
	if f.Extended {
		fmt.Fprintf(&b, "%08X#", f.ID)
	} else {
		fmt.Fprintf(&b, "%03X#", f.ID)
	}
	for _, c := range f.Payload() {
		fmt.Fprintf(&b, "%02X", c)
	}
	return b.String()
}

// NewRaw 直接以给定地址与载荷构造扩展帧，载荷超过8字节时报错
func NewRaw(addr uint32, payload []byte) (Frame, error) {
	if len(payload) > MaxLen {
		return Frame{}, ErrInvalidLength
	}
	f := Frame{ID: addr & canEffMask, Extended: true, Len: uint8(len(payload))}
	copy(f.Data[:], payload)
	return f, nil
}
