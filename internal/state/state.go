// Package state wraps a bbolt database holding all persistent application
// state: stored credentials (token fields already sealed by the credential
// store) and the per-character asset cache.
package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/alexjbarnes/hangar-sync/internal/models"
)

const (
	// stateDirPerm is the permission mode for the data directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket         = []byte("app")
	credentialsBucket = []byte("credentials")

	selectedKey = []byte("selected_character")
)

func assetsBucket(characterID int64) []byte {
	return []byte(fmt.Sprintf("assets:%d", characterID))
}

func assetsMetaBucket(characterID int64) []byte {
	return []byte(fmt.Sprintf("assets:%d:meta", characterID))
}

var syncedAtKey = []byte("synced_at")

// itob encodes an int64 as a big-endian bbolt key so cursor order follows
// numeric order.
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))

	return b
}

// State wraps the bbolt database.
type State struct {
	db *bolt.DB
}

// Load opens the state database at the given path, creating it and its
// parent directory if they do not exist. Tests point this at a temp dir.
func Load(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(appBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(credentialsBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// SaveCredential persists a credential record. The caller (the credential
// store) seals the token fields before they get here; this layer never sees
// plaintext secrets.
func (s *State) SaveCredential(c models.Credential) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}

		return tx.Bucket(credentialsBucket).Put(itob(c.CharacterID), data)
	})
}

// GetCredential returns the stored record for a character, or nil when none
// exists.
func (s *State) GetCredential(characterID int64) (*models.Credential, error) {
	var c *models.Credential

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(credentialsBucket).Get(itob(characterID))
		if v == nil {
			return nil
		}

		c = &models.Credential{}

		return json.Unmarshal(v, c)
	})

	return c, err
}

// DeleteCredential removes a character's stored record.
func (s *State) DeleteCredential(characterID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete(itob(characterID))
	})
}

// AllCredentials returns every stored credential record in character-id order.
func (s *State) AllCredentials() ([]models.Credential, error) {
	var creds []models.Credential

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).ForEach(func(k, v []byte) error {
			var c models.Credential
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}

			creds = append(creds, c)

			return nil
		})
	})

	return creds, err
}

// SelectedCharacter returns the currently selected character id, or 0 when
// none is selected.
func (s *State) SelectedCharacter() (int64, error) {
	var id int64

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(selectedKey)
		if len(v) == 8 {
			id = int64(binary.BigEndian.Uint64(v))
		}

		return nil
	})

	return id, err
}

// SetSelectedCharacter updates the selected character pointer. Passing 0
// clears it.
func (s *State) SetSelectedCharacter(characterID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(appBucket)
		if characterID == 0 {
			return b.Delete(selectedKey)
		}

		return b.Put(selectedKey, itob(characterID))
	})
}

// PutAssets replaces the entire cached asset set for a character in one
// write transaction. Rows that disappeared upstream do not linger: the old
// bucket is dropped before the new rows are written.
func (s *State) PutAssets(characterID int64, assets []models.Asset) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := deleteBucketIfExists(tx, assetsBucket(characterID)); err != nil {
			return err
		}

		b, err := tx.CreateBucket(assetsBucket(characterID))
		if err != nil {
			return err
		}

		for _, a := range assets {
			data, err := json.Marshal(a)
			if err != nil {
				return err
			}

			if err := b.Put(itob(a.ItemID), data); err != nil {
				return err
			}
		}

		meta, err := tx.CreateBucketIfNotExists(assetsMetaBucket(characterID))
		if err != nil {
			return err
		}

		now, err := time.Now().UTC().MarshalText()
		if err != nil {
			return err
		}

		return meta.Put(syncedAtKey, now)
	})
}

// GetAssets returns the cached asset set for a character, or nil when the
// character has never been synchronized.
func (s *State) GetAssets(characterID int64) ([]models.Asset, error) {
	var assets []models.Asset

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(assetsBucket(characterID))
		if b == nil {
			return nil
		}

		assets = []models.Asset{}

		return b.ForEach(func(k, v []byte) error {
			var a models.Asset
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}

			assets = append(assets, a)

			return nil
		})
	})

	return assets, err
}

// AssetsSyncedAt returns when the character's asset cache was last replaced,
// or the zero time when it never was.
func (s *State) AssetsSyncedAt(characterID int64) (time.Time, error) {
	var ts time.Time

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(assetsMetaBucket(characterID))
		if b == nil {
			return nil
		}

		v := b.Get(syncedAtKey)
		if v == nil {
			return nil
		}

		return ts.UnmarshalText(v)
	})

	return ts, err
}

// DeleteAssets drops a character's cached asset set. Called when the
// credential is removed.
func (s *State) DeleteAssets(characterID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := deleteBucketIfExists(tx, assetsBucket(characterID)); err != nil {
			return err
		}

		return deleteBucketIfExists(tx, assetsMetaBucket(characterID))
	})
}

func deleteBucketIfExists(tx *bolt.Tx, name []byte) error {
	if tx.Bucket(name) == nil {
		return nil
	}

	return tx.DeleteBucket(name)
}
