package peers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const jsonPeersPath = "peers.json"

// ParseNodes parses a comma separated list of host:port addresses, as found
// in the NODES environment variable. Malformed entries are returned
// separately so the caller can report them.
func ParseNodes(nodes string) (addrs []string, invalid []string) {
	seen := make(map[string]bool)
	for _, n := range strings.Split(nodes, ",") {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(n); err != nil {
			invalid = append(invalid, n)
			continue
		}
		if !seen[n] {
			seen[n] = true
			addrs = append(addrs, n)
		}
	}
	return addrs, invalid
}

// JSONPeers is used to provide peer persistence on disk in the form of a JSON
// file. The file lists the network addresses of known nodes.
type JSONPeers struct {
	l    sync.Mutex
	path string
}

// NewJSONPeers creates a new JSONPeers with reference to a base directory
// where the JSON file resides.
func NewJSONPeers(base string) *JSONPeers {
	return &JSONPeers{
		path: filepath.Join(base, jsonPeersPath),
	}
}

// Addresses parses the underlying JSON file. A missing or empty file yields
// no addresses.
func (j *JSONPeers) Addresses() ([]string, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, nil
	}

	var peers []*Peer
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&peers); err != nil {
		return nil, fmt.Errorf("parsing %s: %v", j.path, err)
	}

	addrs := make([]string, 0, len(peers))
	for _, p := range peers {
		if p.NetAddr != "" {
			addrs = append(addrs, p.NetAddr)
		}
	}
	return addrs, nil
}

// Write persists peers to the JSON file.
func (j *JSONPeers) Write(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(peers); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf.Bytes(), 0644)
}
