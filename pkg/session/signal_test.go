package session

import (
	"context"
	"testing"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, ch <-chan *models.Identity) *models.Identity {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(time.Second):
		t.Fatal("no identity published")
		return nil
	}
}

func TestSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSignal()
	assert.Nil(t, s.Current())

	ch := s.Subscribe(ctx)
	assert.Nil(t, next(t, ch))

	s.Login(models.Identity{UID: "u1", Email: "a@example.com", DisplayName: "Ada"})
	id := next(t, ch)
	require.NotNil(t, id)
	assert.Equal(t, "u1", id.UID)

	s.Logout()
	assert.Nil(t, next(t, ch))
	assert.Nil(t, s.Current())
}

func TestSignal_CurrentIsACopy(t *testing.T) {
	s := NewSignal()
	s.Login(models.Identity{UID: "u1"})

	id := s.Current()
	id.UID = "mallory"

	assert.Equal(t, "u1", s.Current().UID)
}
