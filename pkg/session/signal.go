// Package session publishes the signed-in identity. nil means nobody is
// signed in.
package session

import (
	"context"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/observable"
)

type Signal struct {
	current *observable.Value[*models.Identity]
}

func NewSignal() *Signal {
	return &Signal{current: observable.NewValue[*models.Identity](nil, cloneIdentity)}
}

func cloneIdentity(id *models.Identity) *models.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func (s *Signal) Login(id models.Identity) {
	s.current.Set(&id)
}

func (s *Signal) Logout() {
	s.current.Set(nil)
}

func (s *Signal) Current() *models.Identity {
	return s.current.Get()
}

// Subscribe streams identity changes, starting with the current identity.
func (s *Signal) Subscribe(ctx context.Context) <-chan *models.Identity {
	return s.current.Subscribe(ctx)
}
