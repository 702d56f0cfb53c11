package sessionmock

import (
	"context"
	"sync"

	"github.com/openkcm/addon-auth/internal/session"
)

type Repository struct {
	mu     sync.Mutex
	States map[string]session.State

	loadErr, storeErr, deleteErr error
}

var _ session.Repository = (*Repository)(nil)

func NewInMemRepository(loadErr, storeErr, deleteErr error) *Repository {
	return &Repository{
		States:    make(map[string]session.State),
		loadErr:   loadErr,
		storeErr:  storeErr,
		deleteErr: deleteErr,
	}
}

func (r *Repository) Load(_ context.Context, id string) (session.State, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadErr != nil {
		return session.State{}, false, r.loadErr
	}

	s, ok := r.States[id]

	return s, ok, nil
}

func (r *Repository) Store(_ context.Context, s session.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storeErr != nil {
		return r.storeErr
	}

	r.States[s.ID] = s

	return nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteErr != nil {
		return r.deleteErr
	}

	delete(r.States, id)

	return nil
}
