package sessionvalkey

import (
	"context"
	"errors"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/addon-auth/internal/session"
)

const objectTypeSession ObjectType = "session"

var (
	ErrGetSession    = errors.New("getting session from store")
	ErrStoreSession  = errors.New("setting session into storage")
	ErrDeleteSession = errors.New("deleting session from store")
)

// Repository keeps session states in valkey. Every store renews the idle
// timeout of the session.
type Repository struct {
	store       *store
	idleTimeout time.Duration
}

var _ session.Repository = (*Repository)(nil)

func NewRepository(valkeyClient valkey.Client, prefix string, idleTimeout time.Duration) *Repository {
	return &Repository{
		store:       newStore(valkeyClient, prefix),
		idleTimeout: idleTimeout,
	}
}

func (r *Repository) Load(ctx context.Context, id string) (session.State, bool, error) {
	var s session.State
	if err := r.store.Get(ctx, objectTypeSession, id, &s); err != nil {
		if errors.Is(err, errNotFound) {
			return session.State{}, false, nil
		}

		return session.State{}, false, errors.Join(ErrGetSession, err)
	}

	return s, true, nil
}

func (r *Repository) Store(ctx context.Context, s session.State) error {
	if err := r.store.Set(ctx, objectTypeSession, s.ID, s, r.idleTimeout); err != nil {
		return errors.Join(ErrStoreSession, err)
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.store.Destroy(ctx, objectTypeSession, id); err != nil {
		return errors.Join(ErrDeleteSession, err)
	}

	return nil
}
