// Package user keeps the durable identity record of a signed-in subject.
package user

import "context"

// User is keyed by the verified subject id of its ID token.
type User struct {
	ID    string
	Email string
}

type Repository interface {
	Get(ctx context.Context, id string) (User, bool, error)
	Put(ctx context.Context, u User) error
}
