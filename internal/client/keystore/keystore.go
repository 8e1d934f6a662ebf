// Package keystore holds the symmetric data keys that seal journal bodies.
// Keys live in a small JSON file outside the main data store; each key is
// itself sealed under a key-encryption key derived from the user passphrase
// with argon2id. At most two keys exist at a time: the active key plus,
// during rotation, the previous one. Partial rotation state stays valid:
// already-migrated records decrypt under the active key, not-yet-migrated
// ones under the previous key.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/quietlog/quietlog/internal/common"
	"github.com/quietlog/quietlog/internal/cryptox"
	"github.com/quietlog/quietlog/internal/filex"
)

// ErrLocked is returned when key material is requested before Unlock.
var ErrLocked = errors.New("keystore is locked")

// ErrRotationInProgress is returned by FinishRotation preconditions and by
// BeginRotation when a previous rotation has not been finished.
var ErrRotationInProgress = errors.New("key rotation in progress")

const saltSize = 16

type sealedKey struct {
	ID   string `json:"id"`
	Blob []byte `json:"blob"`
}

type keyFile struct {
	Salt     []byte     `json:"salt"`
	Active   *sealedKey `json:"active,omitempty"`
	Previous *sealedKey `json:"previous,omitempty"`
}

// KeyStore manages the key file at a fixed path. All methods are safe for
// concurrent use; mutation of the active key requires exclusive access and
// is serialized internally.
type KeyStore struct {
	path string

	mu   sync.Mutex
	kek  []byte
	file *keyFile
}

// New returns a KeyStore over path. No I/O happens until Unlock.
func New(path string) *KeyStore {
	return &KeyStore{path: path}
}

// Unlock derives the key-encryption key from the passphrase, creating the
// key file (with a fresh salt) on first use. The passphrase slice is wiped
// before returning.
func (k *KeyStore) Unlock(passphrase []byte) error {
	defer common.WipeByteArray(passphrase)

	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.load()
	if err != nil {
		return err
	}
	if f == nil {
		f = &keyFile{Salt: common.GenerateRandByteArray(saltSize)}
		if err := k.save(f); err != nil {
			return err
		}
	}

	kek := cryptox.DeriveKEK(passphrase, f.Salt)

	// If a key already exists, verify the passphrase by unsealing it now so
	// a wrong passphrase fails here and not deep inside a read.
	if f.Active != nil {
		if _, err := unseal(f.Active, kek); err != nil {
			return fmt.Errorf("unlock: %w", err)
		}
	}

	k.kek = kek
	k.file = f
	return nil
}

// ActiveKey returns the active key id and material, generating and
// persisting a key on first call.
func (k *KeyStore) ActiveKey() (string, []byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.file == nil {
		return "", nil, ErrLocked
	}
	if k.file.Active == nil {
		sealed, err := sealNewKey(k.kek)
		if err != nil {
			return "", nil, err
		}
		k.file.Active = sealed
		if err := k.save(k.file); err != nil {
			return "", nil, err
		}
	}
	key, err := unseal(k.file.Active, k.kek)
	if err != nil {
		return "", nil, err
	}
	return k.file.Active.ID, key, nil
}

// KeyByID returns the key material for id, which must name the active or the
// previous key.
func (k *KeyStore) KeyByID(id string) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.file == nil {
		return nil, ErrLocked
	}
	if k.file.Active != nil && k.file.Active.ID == id {
		return unseal(k.file.Active, k.kek)
	}
	if k.file.Previous != nil && k.file.Previous.ID == id {
		return unseal(k.file.Previous, k.kek)
	}
	return nil, fmt.Errorf("unknown key id %q: %w", id, common.ErrNotFound)
}

// BoxForID returns an AEAD box sealed around the key named by id.
func (k *KeyStore) BoxForID(id string) (*cryptox.Box, error) {
	key, err := k.KeyByID(id)
	if err != nil {
		return nil, err
	}
	return cryptox.NewBox(key)
}

// BeginRotation makes a fresh key active, demoting the current active key to
// previous, and returns (newID, oldID). Calling it again while a rotation is
// unfinished resumes the same rotation instead of stacking another key.
func (k *KeyStore) BeginRotation() (string, string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.file == nil {
		return "", "", ErrLocked
	}
	if k.file.Active == nil {
		return "", "", errors.New("no active key to rotate")
	}
	if k.file.Previous != nil {
		// resume
		return k.file.Active.ID, k.file.Previous.ID, nil
	}

	sealed, err := sealNewKey(k.kek)
	if err != nil {
		return "", "", err
	}
	k.file.Previous = k.file.Active
	k.file.Active = sealed
	if err := k.save(k.file); err != nil {
		return "", "", err
	}
	return k.file.Active.ID, k.file.Previous.ID, nil
}

// RotationInProgress reports whether a previous key is still retained.
func (k *KeyStore) RotationInProgress() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.file != nil && k.file.Previous != nil
}

// FinishRotation discards the previous key. The caller must have verified
// that no record is still sealed under it.
func (k *KeyStore) FinishRotation() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.file == nil {
		return ErrLocked
	}
	if k.file.Previous == nil {
		return nil
	}
	k.file.Previous = nil
	return k.save(k.file)
}

func (k *KeyStore) load() (*keyFile, error) {
	data, err := os.ReadFile(k.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var f keyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	return &f, nil
}

func (k *KeyStore) save(f *keyFile) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode key file: %w", err)
	}
	if err := filex.WriteFileAtomic(k.path, data, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

func sealNewKey(kek []byte) (*sealedKey, error) {
	box, err := cryptox.NewBox(kek)
	if err != nil {
		return nil, err
	}
	raw := common.GenerateRandByteArray(cryptox.KeySize)
	defer common.WipeByteArray(raw)

	blob, err := box.Seal(raw)
	if err != nil {
		return nil, err
	}
	return &sealedKey{ID: uuid.NewString(), Blob: blob}, nil
}

func unseal(s *sealedKey, kek []byte) ([]byte, error) {
	box, err := cryptox.NewBox(kek)
	if err != nil {
		return nil, err
	}
	return box.Open(s.Blob)
}
