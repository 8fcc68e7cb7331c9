package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/junbin-yang/cansoftbus-go/pkg/frame"
	"github.com/junbin-yang/cansoftbus-go/pkg/session"
	"github.com/junbin-yang/cansoftbus-go/pkg/utils/config"
	"github.com/junbin-yang/cansoftbus-go/pkg/utils/logger"
)

func main() {
	var (
		confPath = flag.String("c", "", "config file (default <exe dir>/"+config.APPNAME+".yml or /etc/"+config.APPNAME+".yml)")
		kind     = flag.String("transport", "", "override transport.kind: socketcan, udp or virtual")
		ifname   = flag.String("i", "", "override transport.interface")
		version  = flag.String("protocol", "", "override protocol.version: stream or series")
		echo     = flag.Bool("echo", false, "send every received message back to its session")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stdout, config.APPNAME+"-server, version: "+config.VERSION+" (built at "+config.BUILD_TIME+") "+config.GO_VERSION)
		flag.PrintDefaults()
	}
	flag.Parse()

	conf, err := config.Load(*confPath)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *kind != "" {
		conf.Transport.Kind = *kind
	}
	if *ifname != "" {
		conf.Transport.Interface = *ifname
	}
	if *version != "" {
		conf.Protocol.Version = *version
	}
	conf.ApplyLogger()
	defer logger.Sync()

	type echoReq struct {
		id   uint32
		data []byte
	}
	echoCh := make(chan echoReq, 64)

	listener := &session.ListenerFuncs{
		Bound: func(s *session.Session) {
			fmt.Printf("[bound] %s\n", s)
		},
		Message: func(id uint32, data []byte) {
			fmt.Printf("[%#x] %d bytes: %q\n", id, len(data), data)
			if *echo {
				// 回调在接收循环中执行，发送交给单独的goroutine
				select {
				case echoCh <- echoReq{id, data}:
				default:
					logger.Warnf("Echo queue full, dropping message for session %#x", id)
				}
			}
		},
		Failed: func(id uint32, err error) {
			fmt.Printf("[%#x] series dropped: %v\n", id, err)
		},
	}

	srv, err := frame.InitCanServer(conf, listener)
	if err != nil {
		fmt.Printf("启动服务器失败: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-echoCh:
				if err := srv.Manager().Send(ctx, req.id, req.data); err != nil {
					logger.Warnf("Echo to session %#x failed: %v", req.id, err)
				}
			}
		}
	}()

	// 设置信号处理
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\n收到中断信号，正在关闭...")
	case <-srv.Done():
	}
	cancel()
	srv.Stop()

	for _, s := range srv.Manager().Sessions() {
		msgs, failed := s.Counters()
		logger.Infof("%s: %d messages, %d failed series", s, msgs, failed)
	}
	if err := srv.Err(); err != nil {
		os.Exit(1)
	}
}
