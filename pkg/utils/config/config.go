package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/segment"
	"github.com/junbin-yang/cansoftbus-go/pkg/session"
	log "github.com/junbin-yang/cansoftbus-go/pkg/utils/logger"
)

var (
	APPNAME    string = "cansoftbus"
	VERSION    string = "undefined"
	BUILD_TIME string = "undefined"
	GO_VERSION string = "undefined"
)

// 传输类型
const (
	TransportSocketCAN = "socketcan"
	TransportUDP       = "udp"
	TransportVirtual   = "virtual"
)

type Config struct {
	Transport struct {
		Kind         string
		Interface    string
		Group        string
		Port         int
		CreateVcan   bool `yaml:"create_vcan"`
		ExtendedOnly bool `yaml:"extended_only"`
	}
	Protocol struct {
		Version    string
		OutOfOrder string `yaml:"out_of_order"`
	}
	Server struct {
		ID               uint32
		InitialSessionID uint32 `yaml:"initial_session_id"`
	}
	Client struct {
		Tag      uint32
		ServerID uint32 `yaml:"server_id"`
		Attempts int
		Timeout  time.Duration
		Backoff  time.Duration
	}
	Logger struct {
		Dir     string
		Level   string
		Rotate  bool
		MaxSize int `yaml:"max_size"` // MB，大于0时按大小轮转，否则按天
	}
}

// Default 返回默认配置
func Default() *Config {
	conf := new(Config)
	conf.Transport.Kind = TransportSocketCAN
	conf.Transport.Interface = "vcan0"
	conf.Protocol.Version = canframe.DefaultVersion.String()
	conf.Protocol.OutOfOrder = segment.PolicyAbort.String()
	conf.Server.ID = session.DefaultServerID
	conf.Server.InitialSessionID = session.DefaultInitialSessionID
	retry := session.DefaultRetryPolicy()
	conf.Client.Attempts = retry.Attempts
	conf.Client.Timeout = retry.Timeout
	conf.Client.Backoff = retry.Backoff
	conf.Logger.Level = "info"
	return conf
}

// DefaultPath 可执行文件同目录下的 <APPNAME>.yml，不存在时使用 /etc/<APPNAME>.yml
func DefaultPath() string {
	if ex, err := os.Executable(); err == nil {
		cfile := filepath.Join(filepath.Dir(ex), APPNAME+".yml")
		if _, err := os.Stat(cfile); err == nil {
			return cfile
		}
	}
	return "/etc/" + APPNAME + ".yml"
}

// Load 读取配置文件。path为空时使用DefaultPath，默认路径不存在时返回默认配置。
// 文件中未出现的字段保留默认值。
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	conf := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return conf, nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return conf, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportSocketCAN:
		if c.Transport.Interface == "" {
			return errors.New("transport.interface is required for socketcan")
		}
	case TransportUDP, TransportVirtual:
	default:
		return fmt.Errorf("unknown transport.kind %q", c.Transport.Kind)
	}
	if _, err := canframe.ParseProtocolVersion(c.Protocol.Version); err != nil {
		return fmt.Errorf("protocol.version: %w", err)
	}
	if _, err := segment.ParsePolicy(c.Protocol.OutOfOrder); err != nil {
		return fmt.Errorf("protocol.out_of_order: %w", err)
	}
	if c.Server.ID < session.MinServerID || c.Server.ID > canframe.ReplyServerMask {
		return fmt.Errorf("server.id %#x out of range [%#x, %#x]", c.Server.ID, session.MinServerID, canframe.ReplyServerMask)
	}
	if c.Server.InitialSessionID > session.MaxSessionID {
		return fmt.Errorf("server.initial_session_id %#x exceeds %#x", c.Server.InitialSessionID, session.MaxSessionID)
	}
	if c.Client.Tag > session.MaxClientTag {
		return fmt.Errorf("client.tag %#x exceeds %#x", c.Client.Tag, session.MaxClientTag)
	}
	if c.Client.Attempts < 1 {
		return errors.New("client.attempts must be at least 1")
	}
	if c.Client.Timeout <= 0 {
		return errors.New("client.timeout must be positive")
	}
	return nil
}

// ProtocolVersion 解析后的协议版本，已通过Validate
func (c *Config) ProtocolVersion() canframe.ProtocolVersion {
	v, _ := canframe.ParseProtocolVersion(c.Protocol.Version)
	return v
}

// Policy 乱序处理策略
func (c *Config) Policy() segment.Policy {
	p, _ := segment.ParsePolicy(c.Protocol.OutOfOrder)
	return p
}

// ManagerConfig 服务器端会话配置
func (c *Config) ManagerConfig() session.ManagerConfig {
	return session.ManagerConfig{
		ServerID:         c.Server.ID,
		InitialSessionID: c.Server.InitialSessionID,
		Version:          c.ProtocolVersion(),
		Policy:           c.Policy(),
	}
}

// ClientConfig 客户端会话配置
func (c *Config) ClientConfig() session.ClientConfig {
	return session.ClientConfig{
		Version:  c.ProtocolVersion(),
		Policy:   c.Policy(),
		ServerID: c.Client.ServerID,
	}
}

// RetryPolicy 客户端握手重试策略
func (c *Config) RetryPolicy() session.RetryPolicy {
	p := session.DefaultRetryPolicy()
	p.Attempts = c.Client.Attempts
	p.Timeout = c.Client.Timeout
	p.Backoff = c.Client.Backoff
	return p
}

// ApplyLogger 按配置设置默认日志器
func (c *Config) ApplyLogger() {
	defer log.Sync()
	if c.Logger.Rotate {
		if len(c.Logger.Dir) == 0 {
			if ex, err := os.Executable(); err == nil {
				c.Logger.Dir = filepath.Dir(ex)
			}
		}
		file := filepath.Join(c.Logger.Dir, APPNAME+".log")
		var out io.Writer
		if c.Logger.MaxSize > 0 {
			out = log.NewProductionRotateBySize(file, c.Logger.MaxSize)
		} else {
			out = log.NewProductionRotateByTime(file)
		}
		log.ReplaceDefault(log.New(out, log.InfoLevel))
	}
	log.SetLevel(log.ParseLevel(strings.ToLower(c.Logger.Level)))
}
