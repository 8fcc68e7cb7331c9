package session

import (
	"bytes"
	"fmt"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
)

// 会话ID分配参数
const (
	DefaultServerID         = 0x112 // 服务器标识，放在应答地址的bit 18-28
	DefaultInitialSessionID = 0x200 // 第一个分配的会话ID
	MaxSessionID            = canframe.AnnounceChannel - 1
	MaxClientTag            = canframe.TagMask
)

// 握手帧格式
const (
	AnnounceLen = 8 // 公告帧载荷长度
	ReplyLen    = 6 // 应答帧载荷长度：4字节魔数 + 2字节客户端标签回显
)

var (
	// AnnounceMagic 新客户端公告的8字节魔数
	AnnounceMagic = [AnnounceLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xCA, 0xF3, 0x04, 0xB0}
	// ReplyMagic 应答载荷前4字节
	ReplyMagic = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}
)

// NewAnnouncement 构造客户端公告帧：地址为公告模式加客户端标签，载荷为8字节魔数
func NewAnnouncement(tag uint32) (canframe.Frame, error) {
	if tag > MaxClientTag {
		return canframe.Frame{}, ErrInvalidClientTag
	}
	return canframe.NewRaw(canframe.AnnounceAddress(tag), AnnounceMagic[:])
}

// ParseAnnouncement 校验公告帧并返回客户端标签。
// 地址模式、长度和全部8个魔数字节都必须匹配。
func ParseAnnouncement(f canframe.Frame) (uint32, error) {
	if !canframe.IsAnnouncement(f.ID) {
		return 0, fmt.Errorf("%w: address %#x", ErrNotAnAnnouncement, f.ID)
	}
	if f.Len != AnnounceLen {
		return 0, fmt.Errorf("%w: length %d", ErrNotAnAnnouncement, f.Len)
	}
	if !bytes.Equal(f.Payload(), AnnounceMagic[:]) {
		return 0, fmt.Errorf("%w: bad marker % X", ErrNotAnAnnouncement, f.Payload())
	}
	return canframe.DecodeAddress(f.ID).Tag, nil
}

// NewReply 构造握手应答：新会话ID在地址中，载荷回显客户端标签
func NewReply(serverID, sessionID, tag uint32) (canframe.Frame, error) {
	var payload [ReplyLen]byte
	copy(payload[:], ReplyMagic[:])
	payload[4] = byte(tag>>8) & 0x07
	payload[5] = byte(tag)
	return canframe.NewRaw(canframe.EncodeReplyAddress(serverID, sessionID), payload[:])
}

// ParseReply 解析握手应答
func ParseReply(f canframe.Frame) (serverID, sessionID, tag uint32, err error) {
	if f.Len != ReplyLen || !bytes.Equal(f.Data[:4], ReplyMagic[:]) {
		return 0, 0, 0, ErrNotAReply
	}
	if canframe.IsAnnouncement(f.ID) || canframe.IsSessionAddress(f.ID) {
		return 0, 0, 0, ErrNotAReply
	}
	serverID, sessionID = canframe.DecodeReplyAddress(f.ID)
	tag = uint32(f.Data[4]&0x07)<<8 | uint32(f.Data[5])
	return serverID, sessionID, tag, nil
}
