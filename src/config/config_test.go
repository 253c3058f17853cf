package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestDefaultConfig(t *testing.T) {
	conf := NewDefaultConfig()

	if addr := conf.BindAddr(); addr != "127.0.0.1:9999" {
		t.Fatalf("BindAddr should be 127.0.0.1:9999, not %s", addr)
	}

	if conf.TxPoolSize != 1000 {
		t.Fatalf("TxPoolSize should be 1000, not %d", conf.TxPoolSize)
	}

	nc := conf.NodeConfig()
	if nc.BlockInterval != DefaultBlockInterval || nc.SyncLimit != DefaultSyncLimit {
		t.Fatalf("NodeConfig does not carry the defaults: %+v", nc)
	}
}

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/ola-a")

	if conf.DatabaseDir != filepath.Join("/tmp/ola-a", DefaultBadgerFile) {
		t.Fatalf("DatabaseDir should follow DataDir, got %s", conf.DatabaseDir)
	}
	if conf.Keyfile() != filepath.Join("/tmp/ola-a", DefaultKeyfile) {
		t.Fatalf("wrong Keyfile %s", conf.Keyfile())
	}
	if conf.GenesisPath() != filepath.Join("/tmp/ola-a", DefaultGenesisFile) {
		t.Fatalf("wrong GenesisPath %s", conf.GenesisPath())
	}

	conf.DatabaseDir = "/var/db"
	conf.GenesisFile = "/etc/ola/genesis.json"
	conf.SetDataDir("/tmp/ola-b")

	if conf.DatabaseDir != "/var/db" {
		t.Fatalf("an explicit DatabaseDir should not be overwritten, got %s", conf.DatabaseDir)
	}
	if conf.GenesisPath() != "/etc/ola/genesis.json" {
		t.Fatalf("an explicit genesis file should be used, got %s", conf.GenesisPath())
	}
}

func TestLogFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "ola-config")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	conf := NewDefaultConfig()
	conf.LogLevel = "info"
	conf.LogFile = filepath.Join(dir, "ola.log")

	logger := conf.Logger()
	if logger.Logger.Level != logrus.InfoLevel {
		t.Fatalf("level should be info, not %s", logger.Logger.Level)
	}

	logger.WithField("height", 3).Info("hello file")

	data, err := ioutil.ReadFile(conf.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Fatalf("log file does not contain the message: %q", data)
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"warn":    logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"unknown": logrus.DebugLevel,
	}
	for in, exp := range cases {
		if l := LogLevel(in); l != exp {
			t.Fatalf("LogLevel(%s) should be %s, not %s", in, exp, l)
		}
	}
}
