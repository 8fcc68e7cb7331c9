package socketcan

import (
	"errors"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/junbin-yang/cansoftbus-go/pkg/utils/logger"
)

// ErrNotCANInterface 接口存在但不是CAN设备
var ErrNotCANInterface = errors.New("socketcan: interface is not a CAN device")

// netlinkAPI 链路操作，测试时替换
type netlinkAPI interface {
	LinkByName(string) (netlink.Link, error)
	LinkAdd(netlink.Link) error
	LinkSetUp(netlink.Link) error
}

type defaultNetlink struct{}

func (defaultNetlink) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }
func (defaultNetlink) LinkAdd(l netlink.Link) error                 { return netlink.LinkAdd(l) }
func (defaultNetlink) LinkSetUp(l netlink.Link) error               { return netlink.LinkSetUp(l) }

// PrepareLink 查找CAN接口并确保其处于UP状态，返回接口索引。
// createVcan为true且接口不存在时创建一个vcan设备（需要CAP_NET_ADMIN）。
func PrepareLink(name string, createVcan bool) (int, error) {
	return prepareLink(defaultNetlink{}, name, createVcan)
}

func prepareLink(nl netlinkAPI, name string, createVcan bool) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("socketcan: interface name is required")
	}

	link, err := nl.LinkByName(name)
	if err != nil {
		if !createVcan {
			return 0, fmt.Errorf("lookup link %s: %w", name, err)
		}
		logger.Infof("CAN interface %s not found, creating vcan device", name)
		if err := nl.LinkAdd(&netlink.GenericLink{LinkAttrs: netlink.LinkAttrs{Name: name}, LinkType: "vcan"}); err != nil {
			return 0, fmt.Errorf("add vcan %s: %w", name, err)
		}
		if link, err = nl.LinkByName(name); err != nil {
			return 0, fmt.Errorf("lookup link %s: %w", name, err)
		}
	}

	if t := link.Type(); t != "can" && t != "vcan" && t != "vxcan" {
		return 0, fmt.Errorf("%w: %s has type %q", ErrNotCANInterface, name, t)
	}

	attrs := link.Attrs()
	if attrs.Flags&net.FlagUp == 0 {
		if err := nl.LinkSetUp(link); err != nil {
			return 0, fmt.Errorf("link set up %s: %w", name, err)
		}
		logger.Infof("CAN interface %s brought up", name)
	}
	return attrs.Index, nil
}
