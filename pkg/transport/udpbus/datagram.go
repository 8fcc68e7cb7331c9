package udpbus

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
)

// 数据报格式：
//
//	0..1   魔数 0xCA 0x4E
//	2      格式版本
//	3      保留
//	4..11  发送方随机标识（大端），用于丢弃组播回环的自身帧
//	12..27 struct can_frame
const (
	datagramVersion = 1
	headerSize      = 12
	DatagramSize    = headerSize + canframe.WireSize
)

var datagramMagic = [2]byte{0xCA, 0x4E}

// ErrBadDatagram 数据报不是CAN桥接格式
var ErrBadDatagram = errors.New("udpbus: bad datagram")

// EncodeDatagram 编码一帧
func EncodeDatagram(nonce uint64, f canframe.Frame) ([]byte, error) {
	frame, err := f.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, DatagramSize)
	buf[0], buf[1] = datagramMagic[0], datagramMagic[1]
	buf[2] = datagramVersion
	binary.BigEndian.PutUint64(buf[4:12], nonce)
	copy(buf[headerSize:], frame)
	return buf, nil
}

// DecodeDatagram 解码数据报，返回发送方标识与帧
func DecodeDatagram(b []byte) (uint64, canframe.Frame, error) {
	var f canframe.Frame
	if len(b) != DatagramSize {
		return 0, f, fmt.Errorf("%w: length %d", ErrBadDatagram, len(b))
	}
	if b[0] != datagramMagic[0] || b[1] != datagramMagic[1] {
		return 0, f, fmt.Errorf("%w: magic %02X%02X", ErrBadDatagram, b[0], b[1])
	}
	if b[2] != datagramVersion {
		return 0, f, fmt.Errorf("%w: version %d", ErrBadDatagram, b[2])
	}
	if err := f.UnmarshalBinary(b[headerSize:]); err != nil {
		return 0, f, fmt.Errorf("%w: %v", ErrBadDatagram, err)
	}
	return binary.BigEndian.Uint64(b[4:12]), f, nil
}
