package persist

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rkotov-iot/meshlink/protocol"
)

// yamlRecord is the on-disk shape of Record: plain scalar/blob fields so
// the file stays human-inspectable, standing in for the original
// firmware's NVS key layout (spec §6: net_name, role, pjon_id, bus_id,
// channel, gw_pjonid, gw_mac).
type yamlRecord struct {
	NetName   string `yaml:"net_name"`
	Role      byte   `yaml:"role"`
	LogicalID uint8  `yaml:"pjon_id"`
	BusID     []byte `yaml:"bus_id"`
	Channel   uint8  `yaml:"channel"`
	GatewayID uint8  `yaml:"gw_pjonid"`
	GatewayMAC []byte `yaml:"gw_mac"`
}

// FileStore persists a Record to a single YAML file, writing through a
// temp file and rename so a crash mid-write can never leave a half
// written record behind — the property the original gets for free from
// NVS's own atomic-commit semantics.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a FileStore backed by path. The file need not exist
// yet; Load reports ok==false until the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.
func (s *FileStore) Load() (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	var yr yamlRecord
	if err := yaml.Unmarshal(data, &yr); err != nil {
		return Record{}, false, err
	}

	rec := Record{
		NetworkName: yr.NetName,
		MyLogicalID: protocol.LogicalID(yr.LogicalID),
		Channel:     yr.Channel,
		GatewayID:   protocol.LogicalID(yr.GatewayID),
	}
	if role, ok := protocol.RoleFromPersistedByte(yr.Role); ok {
		rec.Role = role
	} else {
		return Record{}, false, nil
	}
	copy(rec.BusID[:], yr.BusID)
	copy(rec.GatewayMAC[:], yr.GatewayMAC)

	return rec, true, nil
}

// Save implements Store.
func (s *FileStore) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	yr := yamlRecord{
		NetName:    rec.NetworkName,
		Role:       rec.Role.PersistableByte(),
		LogicalID:  uint8(rec.MyLogicalID),
		BusID:      append([]byte(nil), rec.BusID[:]...),
		Channel:    rec.Channel,
		GatewayID:  uint8(rec.GatewayID),
		GatewayMAC: append([]byte(nil), rec.GatewayMAC[:]...),
	}

	data, err := yaml.Marshal(yr)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".meshlink-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Clear implements Store.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
