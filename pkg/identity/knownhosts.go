package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// DefaultKnownHostsFile is the known hosts file name inside DefaultKeyDir.
const DefaultKnownHostsFile = "known_hosts.json"

// KnownHosts is the client's set of trusted server fingerprints. The zero
// value is an empty set that is not backed by a file.
type KnownHosts struct {
	mu    sync.Mutex
	path  string
	hosts map[string]time.Time
}

type knownHostEntry struct {
	Fingerprint string    `json:"fingerprint"`
	AddedAt     time.Time `json:"addedAt"`
}

// NewKnownHosts returns an in-memory set seeded with fingerprints.
func NewKnownHosts(fingerprints ...string) *KnownHosts {
	kh := &KnownHosts{}
	for _, fp := range fingerprints {
		kh.Add(fp)
	}
	return kh
}

// LoadKnownHosts reads the set from path. A missing file yields an empty set
// that Save will create.
func LoadKnownHosts(path string) (*KnownHosts, error) {
	kh := &KnownHosts{path: path, hosts: map[string]time.Time{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return kh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read known hosts: %w", err)
	}

	var entries []knownHostEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse known hosts: %w", err)
	}
	for _, e := range entries {
		if e.Fingerprint != "" {
			kh.hosts[e.Fingerprint] = e.AddedAt
		}
	}
	return kh, nil
}

// Path is the backing file, empty for an in-memory set.
func (kh *KnownHosts) Path() string {
	return kh.path
}

// Contains reports whether fingerprint is trusted.
func (kh *KnownHosts) Contains(fingerprint string) bool {
	kh.mu.Lock()
	defer kh.mu.Unlock()
	_, ok := kh.hosts[fingerprint]
	return ok
}

// Add trusts fingerprint. It reports false if it was already present.
func (kh *KnownHosts) Add(fingerprint string) bool {
	kh.mu.Lock()
	defer kh.mu.Unlock()
	if kh.hosts == nil {
		kh.hosts = map[string]time.Time{}
	}
	if _, ok := kh.hosts[fingerprint]; ok {
		return false
	}
	kh.hosts[fingerprint] = time.Now().UTC()
	return true
}

// List returns the trusted fingerprints in sorted order.
func (kh *KnownHosts) List() []string {
	kh.mu.Lock()
	defer kh.mu.Unlock()
	out := make([]string, 0, len(kh.hosts))
	for fp := range kh.hosts {
		out = append(out, fp)
	}
	sort.Strings(out)
	return out
}

// Save writes the set back to its file. It is a no-op for in-memory sets.
func (kh *KnownHosts) Save() error {
	if kh.path == "" {
		return nil
	}

	kh.mu.Lock()
	entries := make([]knownHostEntry, 0, len(kh.hosts))
	for fp, added := range kh.hosts {
		entries = append(entries, knownHostEntry{Fingerprint: fp, AddedAt: added})
	}
	kh.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Fingerprint < entries[j].Fingerprint
	})
	return writeJSON(kh.path, entries)
}
