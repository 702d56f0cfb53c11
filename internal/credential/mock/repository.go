package credentialmock

import (
	"context"
	"sync"

	"github.com/openkcm/addon-auth/internal/credential"
)

// Repository is an in-memory credential store. Errors set on it are returned
// by the matching operation.
type Repository struct {
	mu          sync.Mutex
	Credentials map[string]credential.Credential

	GetCalls int

	getErr, putErr, deleteErr error
}

var _ credential.Repository = (*Repository)(nil)

func NewInMemRepository(getErr, putErr, deleteErr error) *Repository {
	return &Repository{
		Credentials: make(map[string]credential.Credential),
		getErr:      getErr,
		putErr:      putErr,
		deleteErr:   deleteErr,
	}
}

func (r *Repository) Get(_ context.Context, subjectID string) (credential.Credential, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.GetCalls++
	if r.getErr != nil {
		return credential.Credential{}, false, r.getErr
	}

	cred, ok := r.Credentials[subjectID]

	return cred, ok, nil
}

func (r *Repository) Put(_ context.Context, cred credential.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.putErr != nil {
		return r.putErr
	}

	r.Credentials[cred.SubjectID] = cred

	return nil
}

func (r *Repository) Delete(_ context.Context, subjectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteErr != nil {
		return r.deleteErr
	}

	delete(r.Credentials, subjectID)

	return nil
}
