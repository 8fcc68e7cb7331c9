package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/junbin-yang/cansoftbus-go/pkg/frame"
	"github.com/junbin-yang/cansoftbus-go/pkg/session"
	"github.com/junbin-yang/cansoftbus-go/pkg/utils/config"
	"github.com/junbin-yang/cansoftbus-go/pkg/utils/logger"
)

type CmdFunc func()

type CmdNode struct {
	Desc string
	Func CmdFunc
}

var cmdList = []CmdNode{
	{"Negotiate", negotiate},
	{"SendBytes", sendBytes},
	{"Receive", receive},
	{"SessionInfo", sessionInfo},
	{"Exit", exitTool},
}

var (
	conf   *config.Config
	client *session.Client
	reader = bufio.NewReader(os.Stdin)
)

func main() {
	var (
		confPath = flag.String("c", "", "config file (default <exe dir>/"+config.APPNAME+".yml or /etc/"+config.APPNAME+".yml)")
		kind     = flag.String("transport", "", "override transport.kind: socketcan, udp or virtual")
		ifname   = flag.String("i", "", "override transport.interface")
		tag      = flag.String("tag", "", "override client.tag, e.g. 0x4BA")
		message  = flag.String("m", "", "negotiate, send this message and exit")
		wait     = flag.Duration("wait", 0, "with -m: wait this long for a reply")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stdout, config.APPNAME+"-client, version: "+config.VERSION+" (built at "+config.BUILD_TIME+") "+config.GO_VERSION)
		flag.PrintDefaults()
	}
	flag.Parse()

	var err error
	if conf, err = config.Load(*confPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *kind != "" {
		conf.Transport.Kind = *kind
	}
	if *ifname != "" {
		conf.Transport.Interface = *ifname
	}
	if *tag != "" {
		v, err := strconv.ParseUint(*tag, 0, 32)
		if err != nil {
			fmt.Printf("invalid tag %q: %v\n", *tag, err)
			os.Exit(1)
		}
		conf.Client.Tag = uint32(v)
	}
	if err := conf.Validate(); err != nil {
		fmt.Printf("配置无效: %v\n", err)
		os.Exit(1)
	}
	conf.ApplyLogger()
	defer logger.Sync()

	tx, err := frame.OpenTransport(conf)
	if err != nil {
		fmt.Printf("打开链路失败: %v\n", err)
		os.Exit(1)
	}
	if client, err = session.NewClient(conf.Client.Tag, tx, conf.ClientConfig()); err != nil {
		tx.Close()
		fmt.Printf("创建客户端失败: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	// 设置信号处理
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n收到中断信号，正在关闭...")
		client.Close()
		logger.Sync()
		os.Exit(0)
	}()

	if *message != "" {
		code := oneShot(*message, *wait)
		client.Close()
		logger.Sync()
		os.Exit(code)
	}

	logger.Infof("[Tool] CAN client started, tag %#x", conf.Client.Tag)

	// 主循环
	for {
		helper()
		index := getInputNumber("Please input cmd index:")
		if index < 0 || index >= len(cmdList) {
			fmt.Printf("invalid cmd:%d.\n", index)
			continue
		}

		fmt.Printf("\nExecute: %s\n", cmdList[index].Desc)
		cmdList[index].Func()

		// Exit 是最后一个命令
		if index == len(cmdList)-1 {
			break
		}
	}
}

// oneShot 握手、发送一条消息，可选地等待回复
func oneShot(message string, wait time.Duration) int {
	ctx := context.Background()
	s, err := session.Negotiate(ctx, client, conf.RetryPolicy())
	if err != nil {
		fmt.Printf("Negotiate fail: %v\n", err)
		return 1
	}
	fmt.Printf("bound: %s\n", s)

	if err := client.Send(ctx, []byte(message)); err != nil {
		fmt.Printf("SendBytes fail: %v\n", err)
		return 1
	}
	if wait <= 0 {
		return 0
	}

	rctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	data, err := client.Receive(rctx)
	if err != nil {
		fmt.Printf("Receive fail: %v\n", err)
		return 1
	}
	fmt.Printf("reply: %q\n", data)
	return 0
}

func helper() {
	fmt.Println("******CAN Client Command List******")
	for i, cmd := range cmdList {
		fmt.Printf("*     %02d - %-20s   *\n", i, cmd.Desc)
	}
	fmt.Println("***********************************")
}

func getInputNumber(prompt string) int {
	num, err := strconv.Atoi(getInputString(prompt))
	if err != nil {
		return -1
	}
	return num
}

func getInputString(prompt string) string {
	fmt.Print(prompt)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func negotiate() {
	s, err := session.Negotiate(context.Background(), client, conf.RetryPolicy())
	if err != nil {
		fmt.Printf("Negotiate fail: %v\n", err)
		return
	}
	fmt.Printf("Negotiate success: %s\n", s)
}

func sendBytes() {
	data := getInputString("Please input message:")
	if err := client.Send(context.Background(), []byte(data)); err != nil {
		fmt.Printf("SendBytes fail: %v\n", err)
		return
	}
	fmt.Println("SendBytes success")
}

func receive() {
	secs := getInputNumber("Please input timeout seconds:")
	if secs <= 0 {
		secs = 5
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(secs)*time.Second)
	defer cancel()

	data, err := client.Receive(ctx)
	if err != nil {
		fmt.Printf("Receive fail: %v\n", err)
		return
	}
	fmt.Printf("Receive %d bytes: %q\n", len(data), data)
}

func sessionInfo() {
	s := client.Session()
	fmt.Println(s)
	msgs, failed := s.Counters()
	stats := s.ReassemblyStats()
	fmt.Printf("address: %#08x, messages: %d, failed: %d, restarted: %d, ignored: %d\n",
		s.Address(), msgs, failed, stats.Restarted, stats.Ignored)
}

func exitTool() {
	fmt.Println("bye")
}
