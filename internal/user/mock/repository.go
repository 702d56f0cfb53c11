package usermock

import (
	"context"
	"sync"

	"github.com/openkcm/addon-auth/internal/user"
)

type Repository struct {
	mu    sync.Mutex
	Users map[string]user.User

	getErr, putErr error
}

var _ user.Repository = (*Repository)(nil)

func NewInMemRepository(getErr, putErr error) *Repository {
	return &Repository{
		Users:  make(map[string]user.User),
		getErr: getErr,
		putErr: putErr,
	}
}

func (r *Repository) Get(_ context.Context, id string) (user.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getErr != nil {
		return user.User{}, false, r.getErr
	}

	u, ok := r.Users[id]

	return u, ok, nil
}

func (r *Repository) Put(_ context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.putErr != nil {
		return r.putErr
	}

	r.Users[u.ID] = u

	return nil
}
