package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/hivelabs/hivemon/pkg/types"
)

var (
	bucketServers = []byte("servers")

	// ErrNotFound is returned when no server matches the given id
	ErrNotFound = errors.New("server not found")
)

// Store persists the list of monitored upstream servers
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the registry database under dataDir
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "hivemon.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketServers)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateServer stores a new server entry, assigning an ID and
// timestamps
func (s *Store) CreateServer(server *types.Server) error {
	if server.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if server.URL == "" {
		return fmt.Errorf("server url is required")
	}

	if server.ID == "" {
		server.ID = uuid.New().String()
	}
	now := time.Now()
	server.CreatedAt = now
	server.UpdatedAt = now

	return s.put(server)
}

// GetServer returns the server with the given id
func (s *Store) GetServer(id string) (*types.Server, error) {
	var server types.Server
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketServers).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &server)
	})
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// ListServers returns all stored servers
func (s *Store) ListServers() ([]*types.Server, error) {
	var servers []*types.Server
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServers).ForEach(func(k, v []byte) error {
			var server types.Server
			if err := json.Unmarshal(v, &server); err != nil {
				return err
			}
			servers = append(servers, &server)
			return nil
		})
	})
	return servers, err
}

// UpdateServer replaces an existing server entry
func (s *Store) UpdateServer(server *types.Server) error {
	existing, err := s.GetServer(server.ID)
	if err != nil {
		return err
	}
	server.CreatedAt = existing.CreatedAt
	server.UpdatedAt = time.Now()
	return s.put(server)
}

// DeleteServer removes the server with the given id
func (s *Store) DeleteServer(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

func (s *Store) put(server *types.Server) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(server)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketServers).Put([]byte(server.ID), data)
	})
}
