package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/junbin-yang/cansoftbus-go/pkg/canframe"
	"github.com/junbin-yang/cansoftbus-go/pkg/segment"
	"github.com/junbin-yang/cansoftbus-go/pkg/session"
	log "github.com/junbin-yang/cansoftbus-go/pkg/utils/logger"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cansoftbus.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	conf := Default()
	if err := conf.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if conf.ProtocolVersion() != canframe.VersionStream {
		t.Errorf("default version = %s", conf.ProtocolVersion())
	}
	if conf.Policy() != segment.PolicyAbort {
		t.Errorf("default policy = %s", conf.Policy())
	}
	mc := conf.ManagerConfig()
	if mc.ServerID != session.DefaultServerID || mc.InitialSessionID != session.DefaultInitialSessionID {
		t.Errorf("manager config = %+v", mc)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
transport:
  kind: udp
  group: 239.1.2.3
  port: 40000
protocol:
  version: series
  out_of_order: restart
server:
  id: 0x120
  initial_session_id: 0x300
client:
  tag: 0x4BA
  server_id: 0x120
  attempts: 5
  timeout: 1s
  backoff: 250ms
logger:
  level: debug
`)
	conf, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if conf.Transport.Kind != TransportUDP || conf.Transport.Group != "239.1.2.3" || conf.Transport.Port != 40000 {
		t.Errorf("transport = %+v", conf.Transport)
	}
	if conf.ProtocolVersion() != canframe.VersionSeries || conf.Policy() != segment.PolicyRestart {
		t.Errorf("protocol = %+v", conf.Protocol)
	}

	mc := conf.ManagerConfig()
	if mc.ServerID != 0x120 || mc.InitialSessionID != 0x300 || mc.Version != canframe.VersionSeries {
		t.Errorf("manager config = %+v", mc)
	}

	cc := conf.ClientConfig()
	if cc.ServerID != 0x120 || cc.Policy != segment.PolicyRestart {
		t.Errorf("client config = %+v", cc)
	}
	if conf.Client.Tag != 0x4BA {
		t.Errorf("client tag = %#x", conf.Client.Tag)
	}

	rp := conf.RetryPolicy()
	if rp.Attempts != 5 || rp.Timeout != time.Second || rp.Backoff != 250*time.Millisecond || rp.Clock == nil {
		t.Errorf("retry policy = %+v", rp)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "transport:\n  kind: virtual\n")
	conf, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if conf.Server.ID != session.DefaultServerID {
		t.Errorf("server id = %#x", conf.Server.ID)
	}
	if conf.Client.Attempts != session.DefaultRetryPolicy().Attempts {
		t.Errorf("attempts = %d", conf.Client.Attempts)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"bad kind":    "transport:\n  kind: serial\n",
		"bad version": "protocol:\n  version: v3\n",
		"bad policy":  "protocol:\n  out_of_order: ignore\n",
		"server id":   "server:\n  id: 0x3\n",
		"session id":  "server:\n  initial_session_id: 0x3FF\n",
		"client tag":  "client:\n  tag: 0x800\n",
		"attempts":    "client:\n  attempts: 0\n",
		"yaml":        "transport: [\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("missing explicit file: expected error")
	}
}

func TestApplyLogger(t *testing.T) {
	prev := log.Default()
	defer log.ReplaceDefault(prev)

	conf := Default()
	conf.Logger.Rotate = true
	conf.Logger.Dir = t.TempDir()
	conf.Logger.MaxSize = 1
	conf.Logger.Level = "WARN"
	conf.ApplyLogger()

	if log.Default() == prev {
		t.Fatal("rotating logger not installed")
	}
	if log.Default().Level() != log.WarnLevel {
		t.Errorf("level = %v", log.Default().Level())
	}

	log.Warn("written to file")
	log.Sync()
	data, err := os.ReadFile(filepath.Join(conf.Logger.Dir, APPNAME+".log"))
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file content = %q", data)
	}
}
