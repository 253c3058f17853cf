package commands

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "ola-cmd")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	conf := []byte("block-interval = \"3s\"\nmoniker = \"alpha\"\n")
	if err := ioutil.WriteFile(filepath.Join(dir, "ola.toml"), conf, 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BLOCKCHAIN_DATA_PATH", dir)
	t.Setenv("NODE_IP", "127.0.0.2")
	t.Setenv("NODE_PORT", "7777")
	t.Setenv("NODES", "127.0.0.1:9998")

	cmd := NewRunCmd()
	if err := cmd.ParseFlags([]string{"--sync-limit", "42", "--log", "error"}); err != nil {
		t.Fatal(err)
	}

	if err := loadConfig(cmd, nil); err != nil {
		t.Fatal(err)
	}

	if _config.DataDir != dir {
		t.Fatalf("DataDir should come from the environment, got %s", _config.DataDir)
	}
	if addr := _config.BindAddr(); addr != "127.0.0.2:7777" {
		t.Fatalf("BindAddr should be 127.0.0.2:7777, not %s", addr)
	}
	if _config.Nodes != "127.0.0.1:9998" {
		t.Fatalf("Nodes should come from the environment, got %s", _config.Nodes)
	}
	if _config.SyncLimit != 42 {
		t.Fatalf("SyncLimit should come from the flag, got %d", _config.SyncLimit)
	}
	if _config.BlockInterval != 3*time.Second || _config.Moniker != "alpha" {
		t.Fatalf("config file not applied: %v %s", _config.BlockInterval, _config.Moniker)
	}
	if _config.DatabaseDir != filepath.Join(dir, "badger_db") {
		t.Fatalf("DatabaseDir should follow DataDir, got %s", _config.DatabaseDir)
	}
}
