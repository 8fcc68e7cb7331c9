package socketcan

import (
	"errors"
	"net"
	"testing"

	"github.com/vishvananda/netlink"
)

type fakeLink struct {
	attrs netlink.LinkAttrs
	kind  string
}

func (f *fakeLink) Attrs() *netlink.LinkAttrs { return &f.attrs }
func (f *fakeLink) Type() string              { return f.kind }

type fakeNetlink struct {
	links map[string]*fakeLink
	added []netlink.Link
	up    []string
}

func (f *fakeNetlink) LinkByName(name string) (netlink.Link, error) {
	l, ok := f.links[name]
	if !ok {
		return nil, errors.New("Link not found")
	}
	return l, nil
}

func (f *fakeNetlink) LinkAdd(l netlink.Link) error {
	f.added = append(f.added, l)
	name := l.Attrs().Name
	f.links[name] = &fakeLink{attrs: netlink.LinkAttrs{Name: name, Index: 42}, kind: l.Type()}
	return nil
}

func (f *fakeNetlink) LinkSetUp(l netlink.Link) error {
	l.Attrs().Flags |= net.FlagUp
	f.up = append(f.up, l.Attrs().Name)
	return nil
}

func TestPrepareLinkExisting(t *testing.T) {
	nl := &fakeNetlink{links: map[string]*fakeLink{
		"can0": {attrs: netlink.LinkAttrs{Name: "can0", Index: 3, Flags: net.FlagUp}, kind: "can"},
	}}

	idx, err := prepareLink(nl, "can0", false)
	if err != nil {
		t.Fatalf("prepareLink: %v", err)
	}
	if idx != 3 {
		t.Fatalf("index = %d, want 3", idx)
	}
	if len(nl.up) != 0 || len(nl.added) != 0 {
		t.Fatalf("unexpected changes: up=%v added=%v", nl.up, nl.added)
	}
}

func TestPrepareLinkBringsUp(t *testing.T) {
	nl := &fakeNetlink{links: map[string]*fakeLink{
		"vcan0": {attrs: netlink.LinkAttrs{Name: "vcan0", Index: 5}, kind: "vcan"},
	}}

	if _, err := prepareLink(nl, "vcan0", false); err != nil {
		t.Fatalf("prepareLink: %v", err)
	}
	if len(nl.up) != 1 || nl.up[0] != "vcan0" {
		t.Fatalf("link not set up: %v", nl.up)
	}
}

func TestPrepareLinkCreatesVcan(t *testing.T) {
	nl := &fakeNetlink{links: map[string]*fakeLink{}}

	idx, err := prepareLink(nl, "vcan1", true)
	if err != nil {
		t.Fatalf("prepareLink: %v", err)
	}
	if idx != 42 {
		t.Fatalf("index = %d, want 42", idx)
	}
	if len(nl.added) != 1 || nl.added[0].Type() != "vcan" {
		t.Fatalf("vcan not created: %v", nl.added)
	}
	gl, ok := nl.added[0].(*netlink.GenericLink)
	if !ok {
		t.Fatalf("added link is %T, want *netlink.GenericLink", nl.added[0])
	}
	if gl.LinkType != "vcan" || gl.Attrs().Name != "vcan1" {
		t.Fatalf("added link = %+v", gl)
	}
}

func TestPrepareLinkMissing(t *testing.T) {
	nl := &fakeNetlink{links: map[string]*fakeLink{}}
	if _, err := prepareLink(nl, "can9", false); err == nil {
		t.Fatal("expected error for missing link")
	}
	if _, err := prepareLink(nl, "", true); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestPrepareLinkRejectsNonCAN(t *testing.T) {
	nl := &fakeNetlink{links: map[string]*fakeLink{
		"eth0": {attrs: netlink.LinkAttrs{Name: "eth0", Index: 2, Flags: net.FlagUp}, kind: "device"},
	}}
	if _, err := prepareLink(nl, "eth0", false); !errors.Is(err, ErrNotCANInterface) {
		t.Fatalf("err = %v, want ErrNotCANInterface", err)
	}
}
