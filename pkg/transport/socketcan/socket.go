// Package socketcan 基于Linux原始CAN套接字（AF_CAN/CAN_RAW）的单帧收发实现
package socketcan

import (
	"errors"
	"time"
)

// ErrUnsupported 当前平台没有SocketCAN
var ErrUnsupported = errors.New("socketcan: not supported on this platform")

// DefaultPollInterval 接收轮询间隔，决定ctx取消的响应延迟
const DefaultPollInterval = 100 * time.Millisecond

// Config 套接字配置
type Config struct {
	Interface    string // 例如 "can0"、"vcan0"
	CreateVcan   bool   // 接口不存在时创建vcan
	ExtendedOnly bool   // 内核过滤，只接收29位扩展帧
	PollInterval time.Duration
}
