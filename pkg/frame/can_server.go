package frame

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/junbin-yang/cansoftbus-go/pkg/session"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport/socketcan"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport/udpbus"
	"github.com/junbin-yang/cansoftbus-go/pkg/transport/virtual"
	"github.com/junbin-yang/cansoftbus-go/pkg/utils/config"
	"github.com/junbin-yang/cansoftbus-go/pkg/utils/logger"
)

var (
	gVirtualBus  *virtual.Bus
	gVirtualOnce sync.Once
	gEndpointSeq atomic.Uint32
)

// VirtualBus 进程内共享的虚拟总线，transport.kind为virtual时使用
func VirtualBus() *virtual.Bus {
	gVirtualOnce.Do(func() {
		gVirtualBus = virtual.NewBus()
	})
	return gVirtualBus
}

// OpenTransport 按配置打开链路层
func OpenTransport(conf *config.Config) (transport.Transport, error) {
	switch conf.Transport.Kind {
	case config.TransportSocketCAN:
		return socketcan.Open(socketcan.Config{
			Interface:    conf.Transport.Interface,
			CreateVcan:   conf.Transport.CreateVcan,
			ExtendedOnly: conf.Transport.ExtendedOnly,
		})
	case config.TransportUDP:
		cfg := udpbus.DefaultConfig()
		if conf.Transport.Group != "" {
			cfg.Group = conf.Transport.Group
		}
		if conf.Transport.Port != 0 {
			cfg.Port = conf.Transport.Port
		}
		cfg.Interface = conf.Transport.Interface
		return udpbus.Open(cfg)
	case config.TransportVirtual:
		name := fmt.Sprintf("%s-%d", config.APPNAME, gEndpointSeq.Add(1))
		return VirtualBus().Attach(name), nil
	}
	return nil, fmt.Errorf("[Frame] unknown transport kind %q", conf.Transport.Kind)
}

// Server CAN会话服务器：链路层 + 会话管理器 + 接收循环
type Server struct {
	tx      transport.Transport
	manager *session.Manager

	cancel context.CancelFunc
	done   chan struct{}
	err    error

	running bool
	mu      sync.Mutex
}

// InitCanServer 打开链路层、创建会话管理器并启动接收循环
func InitCanServer(conf *config.Config, listener session.MessageListener) (*Server, error) {
	if conf == nil {
		return nil, errors.New("[Frame] nil config")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	logger.Infof("[Frame] Initializing CAN server on %s transport", conf.Transport.Kind)

	// 1. 链路层
	tx, err := OpenTransport(conf)
	if err != nil {
		logger.Errorf("[Frame] Failed to open transport: %v", err)
		return nil, err
	}

	// 2. 会话管理器
	manager, err := session.NewManager(conf.ManagerConfig(), tx, listener)
	if err != nil {
		logger.Errorf("[Frame] Failed to create session manager: %v", err)
		tx.Close()
		return nil, err
	}

	// 3. 接收循环
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		tx:      tx,
		manager: manager,
		cancel:  cancel,
		done:    make(chan struct{}),
		running: true,
	}
	go s.serve(ctx)

	logger.Info("[Frame] CAN server started")
	return s, nil
}

func (s *Server) serve(ctx context.Context) {
	defer close(s.done)
	err := s.manager.Serve(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if err != nil && !errors.Is(err, context.Canceled) {
		s.err = err
		logger.Errorf("[Frame] Session manager stopped: %v", err)
	}
}

// Manager 会话管理器
func (s *Server) Manager() *session.Manager { return s.manager }

// Transport 服务器使用的链路层
func (s *Server) Transport() transport.Transport { return s.tx }

// IsRunning 接收循环是否在运行
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Err 接收循环异常退出的原因
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done 接收循环退出时关闭
func (s *Server) Done() <-chan struct{} { return s.done }

// Stop 按与启动相反的顺序关闭：先停接收循环，再关闭链路层
func (s *Server) Stop() {
	logger.Info("[Frame] Stopping CAN server...")
	s.cancel()
	<-s.done
	if err := s.tx.Close(); err != nil {
		logger.Warnf("[Frame] Failed to close transport: %v", err)
	}
	logger.Info("[Frame] CAN server stopped")
}
