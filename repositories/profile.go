package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"tchat/contract"
	"tchat/domain"
	"tchat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const profilePrefix = "user:"

// ProfileRepository persists when a name was first and last seen.
// Values are JSON so the store stays readable with cmd/inspect.
type ProfileRepository struct {
	db  *badger.DB
	log *slog.Logger
	// serializes read-modify-write, concurrent updates would hit badger.ErrConflict
	mu sync.Mutex
}

func NewProfileRepository(db *badger.DB, log *slog.Logger) *ProfileRepository {
	return &ProfileRepository{db: db, log: log}
}

var _ contract.IProfileStore = (*ProfileRepository)(nil)

// OpenBadger opens the store at path, or an in-memory store when path is empty.
func OpenBadger(path string) (*badger.DB, error) {
	options := badger.DefaultOptions(path)
	if path == "" {
		options = badger.DefaultOptions("").WithInMemory(true)
	}
	db, err := badger.Open(options.WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	return db, nil
}

type diskProfile struct {
	FirstSeen  time.Time `json:"first_seen"`
	LastActive time.Time `json:"last_active"`
}

// RecordConnect creates the profile on first sight and refreshes last_active.
func (r *ProfileRepository) RecordConnect(name string, at time.Time) (domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var profile domain.Profile
	err := r.db.Update(func(txn *badger.Txn) error {
		current, found, err := readProfile(txn, name)
		if err != nil {
			return err
		}
		if !found {
			current = diskProfile{FirstSeen: at.UTC()}
			r.log.Debug("New profile", "name", name)
		}
		current.LastActive = at.UTC()
		profile = toProfile(name, current)
		return writeProfile(txn, name, current)
	})
	if err != nil {
		return domain.Profile{}, fmt.Errorf("record connect of %s: %w", name, err)
	}
	return profile, nil
}

func (r *ProfileRepository) RecordDisconnect(name string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.db.Update(func(txn *badger.Txn) error {
		current, found, err := readProfile(txn, name)
		if err != nil {
			return err
		}
		if !found {
			current.FirstSeen = at.UTC()
		}
		current.LastActive = at.UTC()
		return writeProfile(txn, name, current)
	})
	if err != nil {
		return fmt.Errorf("record disconnect of %s: %w", name, err)
	}
	return nil
}

func (r *ProfileRepository) Get(name string) (domain.Profile, error) {
	var profile domain.Profile
	err := r.db.View(func(txn *badger.Txn) error {
		current, found, err := readProfile(txn, name)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", errors.ErrProfileNotFound, name)
		}
		profile = toProfile(name, current)
		return nil
	})
	return profile, err
}

// List returns every stored profile ordered by name using a prefix scan.
func (r *ProfileRepository) List() ([]domain.Profile, error) {
	var profiles []domain.Profile
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(profilePrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			name := strings.TrimPrefix(string(item.Key()), profilePrefix)
			var current diskProfile
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return fmt.Errorf("decode profile %s: %w", name, err)
			}
			profiles = append(profiles, toProfile(name, current))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

func profileKey(name string) []byte {
	return []byte(profilePrefix + name)
}

func readProfile(txn *badger.Txn, name string) (diskProfile, bool, error) {
	var current diskProfile
	item, err := txn.Get(profileKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return current, false, nil
	}
	if err != nil {
		return current, false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &current)
	})
	return current, err == nil, err
}

func writeProfile(txn *badger.Txn, name string, profile diskProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(profileKey(name), data)
}

func toProfile(name string, p diskProfile) domain.Profile {
	return domain.Profile{Name: name, FirstSeen: p.FirstSeen, LastActive: p.LastActive}
}
