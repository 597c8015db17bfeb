package hal

import (
	"os"
	"sync"

	"smokenode/errcode"
	"smokenode/types"
)

// Retention word layout (one 32-bit scratch register):
//
//	bits 31..24  magic
//	bits 23..16  check = low ^ battery ^ checkSeed
//	bits 15..8   last reported battery (half-percent)
//	bits  7..1   long wakes since the battery was last reported
//	bit   0      alarm flag
const (
	retainedMagic = 0xA5
	checkSeed     = 0x5A
)

// EncodeRetained packs r into a retention word. Quiet saturates at 127.
func EncodeRetained(r types.Retained) uint32 {
	low := uint32(min(r.Quiet, types.MaxQuiet)) << 1
	if r.AlarmActive {
		low |= 1
	}
	bat := uint32(r.LastBattery)
	check := (low ^ bat ^ checkSeed) & 0xFF
	return retainedMagic<<24 | check<<16 | bat<<8 | low
}

// DecodeRetained unpacks w. It reports false, with the power-loss defaults,
// when the magic or check byte does not match.
func DecodeRetained(w uint32) (types.Retained, bool) {
	if w>>24 != retainedMagic {
		return types.DefaultRetained(), false
	}
	low := w & 0xFF
	bat := (w >> 8) & 0xFF
	if (w>>16)&0xFF != (low^bat^checkSeed)&0xFF {
		return types.DefaultRetained(), false
	}
	return types.Retained{AlarmActive: low&1 == 1, LastBattery: uint8(bat), Quiet: uint8(low >> 1)}, true
}

// -----------------------------------------------------------------------------
// In-memory store (simulator, always-on variant)
// -----------------------------------------------------------------------------

// MemStore keeps the retention word in RAM.
type MemStore struct {
	mu    sync.Mutex
	word  uint32
	Fails error // returned by Store when set
}

func (m *MemStore) Load() (types.Retained, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return DecodeRetained(m.word)
}

func (m *MemStore) Store(r types.Retained) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fails != nil {
		return errcode.Wrap(errcode.Storage, "retained.store", m.Fails)
	}
	m.word = EncodeRetained(r)
	return nil
}

// PowerLoss wipes the region the way a battery pull would.
func (m *MemStore) PowerLoss() {
	m.mu.Lock()
	m.word = 0
	m.mu.Unlock()
}

// -----------------------------------------------------------------------------
// File store (Linux rig, simulator across process runs)
// -----------------------------------------------------------------------------

// FileStore keeps the two retention bytes (plus check bytes) in a file that
// is synced before Store returns.
type FileStore struct {
	Path string
}

func (f FileStore) Load() (types.Retained, bool) {
	b, err := os.ReadFile(f.Path)
	if err != nil || len(b) != 4 {
		return types.DefaultRetained(), false
	}
	w := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return DecodeRetained(w)
}

func (f FileStore) Store(r types.Retained) error {
	w := EncodeRetained(r)
	b := []byte{byte(w >> 24), byte(w >> 16), byte(w >> 8), byte(w)}

	tmp := f.Path + ".tmp"
	fd, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errcode.Wrap(errcode.Storage, "retained.store", err)
	}
	if _, err := fd.Write(b); err != nil {
		fd.Close()
		return errcode.Wrap(errcode.Storage, "retained.store", err)
	}
	if err := fd.Sync(); err != nil {
		fd.Close()
		return errcode.Wrap(errcode.Storage, "retained.store", err)
	}
	if err := fd.Close(); err != nil {
		return errcode.Wrap(errcode.Storage, "retained.store", err)
	}
	return errcode.Wrap(errcode.Storage, "retained.store", os.Rename(tmp, f.Path))
}
