package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelabs/hivemon/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetServer(t *testing.T) {
	s := newTestStore(t)

	server := &types.Server{
		Name:    "homelab",
		URL:     "https://pve.example.com:8006",
		TokenID: "monitor@pve!dashboard",
		Secret:  "s3cret",
	}
	require.NoError(t, s.CreateServer(server))
	assert.NotEmpty(t, server.ID)
	assert.False(t, server.CreatedAt.IsZero())

	got, err := s.GetServer(server.ID)
	require.NoError(t, err)
	assert.Equal(t, "homelab", got.Name)
	assert.Equal(t, "https://pve.example.com:8006", got.URL)
	assert.Equal(t, "s3cret", got.Secret, "the secret must survive persistence")
}

func TestCreateServerValidation(t *testing.T) {
	s := newTestStore(t)

	assert.Error(t, s.CreateServer(&types.Server{URL: "https://pve.example.com"}))
	assert.Error(t, s.CreateServer(&types.Server{Name: "no-url"}))
}

func TestGetServerNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetServer("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListServers(t *testing.T) {
	s := newTestStore(t)

	servers, err := s.ListServers()
	require.NoError(t, err)
	assert.Empty(t, servers)

	require.NoError(t, s.CreateServer(&types.Server{Name: "a", URL: "https://a.example.com"}))
	require.NoError(t, s.CreateServer(&types.Server{Name: "b", URL: "https://b.example.com"}))

	servers, err = s.ListServers()
	require.NoError(t, err)
	assert.Len(t, servers, 2)
}

func TestUpdateServer(t *testing.T) {
	s := newTestStore(t)

	server := &types.Server{Name: "homelab", URL: "https://old.example.com"}
	require.NoError(t, s.CreateServer(server))
	created := server.CreatedAt

	time.Sleep(10 * time.Millisecond)
	server.URL = "https://new.example.com"
	require.NoError(t, s.UpdateServer(server))

	got, err := s.GetServer(server.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example.com", got.URL)
	assert.Equal(t, created.Unix(), got.CreatedAt.Unix(), "update must preserve the creation time")
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestUpdateServerNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateServer(&types.Server{ID: "missing", Name: "x", URL: "https://x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteServer(t *testing.T) {
	s := newTestStore(t)

	server := &types.Server{Name: "homelab", URL: "https://pve.example.com"}
	require.NoError(t, s.CreateServer(server))

	require.NoError(t, s.DeleteServer(server.ID))
	_, err := s.GetServer(server.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteServer(server.ID), ErrNotFound)
}
