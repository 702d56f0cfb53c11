package session

import "context"

// Repository stores session states by browser session id. Load reports a miss
// with found=false.
type Repository interface {
	Load(ctx context.Context, id string) (s State, found bool, err error)
	Store(ctx context.Context, s State) error
	Delete(ctx context.Context, id string) error
}
