package scattering

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Amplitudes are the scattering amplitudes of one diameter bin, in mm.
// S are backscatter amplitudes and F forward amplitudes.
type Amplitudes struct {
	Shh, Svv, Shv complex128
	Fhh, Fvv      complex128
}

// Table supplies per-bin amplitudes for a configuration. Implementations
// must be safe for concurrent reads.
type Table interface {
	Lookup(cfg Config, bin int) (Amplitudes, bool)
}

// MemoryTable holds amplitudes keyed by Config.Key, one slice entry per bin.
type MemoryTable struct {
	mu      sync.RWMutex
	entries map[string][]Amplitudes
}

// NewMemoryTable creates an empty table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{entries: make(map[string][]Amplitudes)}
}

// Put stores the amplitudes for every bin of a configuration.
func (t *MemoryTable) Put(cfg Config, bins []Amplitudes) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[cfg.Key()] = append([]Amplitudes(nil), bins...)
}

// Lookup implements Table.
func (t *MemoryTable) Lookup(cfg Config, bin int) (Amplitudes, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bins, ok := t.entries[cfg.Key()]
	if !ok || bin < 0 || bin >= len(bins) {
		return Amplitudes{}, false
	}
	return bins[bin], true
}

// Keys returns the stored configuration keys in sorted order.
func (t *MemoryTable) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// On-disk form. msgpack has no complex type, so amplitudes are stored as
// re/im pairs in the order Shh, Svv, Shv, Fhh, Fvv.
type tableFile struct {
	Version int          `msgpack:"version"`
	Configs []tableEntry `msgpack:"configs"`
}

type tableEntry struct {
	Key  string        `msgpack:"key"`
	Bins [][10]float64 `msgpack:"bins"`
}

const tableFileVersion = 1

// Save writes the table in msgpack form.
func (t *MemoryTable) Save(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	f := tableFile{Version: tableFileVersion}
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		e := tableEntry{Key: k, Bins: make([][10]float64, len(t.entries[k]))}
		for i, a := range t.entries[k] {
			e.Bins[i] = [10]float64{
				real(a.Shh), imag(a.Shh),
				real(a.Svv), imag(a.Svv),
				real(a.Shv), imag(a.Shv),
				real(a.Fhh), imag(a.Fhh),
				real(a.Fvv), imag(a.Fvv),
			}
		}
		f.Configs = append(f.Configs, e)
	}

	if err := msgpack.NewEncoder(w).Encode(&f); err != nil {
		return fmt.Errorf("error encoding scattering table: %w", err)
	}
	return nil
}

// Load reads a table written by Save.
func Load(r io.Reader) (*MemoryTable, error) {
	var f tableFile
	if err := msgpack.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("error decoding scattering table: %w", err)
	}
	if f.Version != tableFileVersion {
		return nil, fmt.Errorf("unsupported scattering table version %d", f.Version)
	}

	t := NewMemoryTable()
	for _, e := range f.Configs {
		bins := make([]Amplitudes, len(e.Bins))
		for i, v := range e.Bins {
			bins[i] = Amplitudes{
				Shh: complex(v[0], v[1]),
				Svv: complex(v[2], v[3]),
				Shv: complex(v[4], v[5]),
				Fhh: complex(v[6], v[7]),
				Fvv: complex(v[8], v[9]),
			}
		}
		t.entries[e.Key] = bins
	}
	return t, nil
}

// LoadFile reads a table from disk.
func LoadFile(path string) (*MemoryTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening scattering table %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// SaveFile writes the table to disk.
func (t *MemoryTable) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating scattering table %s: %w", path, err)
	}
	if err := t.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
