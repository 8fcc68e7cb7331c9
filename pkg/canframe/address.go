package canframe

// 29位扩展标识符的划分：
//
//	bit 0-10  : 客户端标签（11位）
//	bit 11-20 : 通道，0x3FF为新客户端公告，其余为会话ID
//	bit 21-28 : 保留，会话地址中必须为0
//
// 握手应答使用另一种布局：serverID<<18 | sessionID。
const (
	TagMask         = 0x7FF
	ChannelShift    = 11
	ChannelMask     = 0x3FF
	AnnounceChannel = 0x3FF
	reservedShift   = 21
	reservedMask    = 0xFF

	ReplyServerShift = 18
	ReplyServerMask  = 0x7FF
	ReplySessionMask = 0x3FFFF
)

// AddressFields 地址字段分解结果
type AddressFields struct {
	Channel  uint32 // 公告模式或会话ID
	Tag      uint32 // 客户端标签
	Reserved uint32
}

// EncodeAddress 组合通道与标签。只做移位与按位或，范围由调用方保证。
func EncodeAddress(channel, tag uint32) uint32 {
	return channel<<ChannelShift | tag
}

// DecodeAddress 拆分地址字段
func DecodeAddress(addr uint32) AddressFields {
	return AddressFields{
		Channel:  (addr >> ChannelShift) & ChannelMask,
		Tag:      addr & TagMask,
		Reserved: (addr >> reservedShift) & reservedMask,
	}
}

// IsAnnouncement 判断是否为新客户端公告地址
func IsAnnouncement(addr uint32) bool {
	f := DecodeAddress(addr)
	return f.Channel == AnnounceChannel && f.Reserved == 0
}

// IsSessionAddress 判断地址是否落在会话数据地址空间
func IsSessionAddress(addr uint32) bool {
	f := DecodeAddress(addr)
	return f.Channel != AnnounceChannel && f.Reserved == 0
}

// AnnounceAddress 客户端公告使用的地址
func AnnounceAddress(tag uint32) uint32 {
	return EncodeAddress(AnnounceChannel, tag)
}

// EncodeReplyAddress 握手应答地址：服务器ID在bit 18-28，会话ID在bit 0-17
func EncodeReplyAddress(serverID, sessionID uint32) uint32 {
	return serverID<<ReplyServerShift | sessionID
}

// DecodeReplyAddress 拆分握手应答地址
func DecodeReplyAddress(addr uint32) (serverID, sessionID uint32) {
	return (addr >> ReplyServerShift) & ReplyServerMask, addr & ReplySessionMask
}
