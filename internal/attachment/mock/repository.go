package attachmentmock

import (
	"context"
	"sync"

	"github.com/openkcm/addon-auth/internal/attachment"
)

type Repository struct {
	mu          sync.Mutex
	Attachments map[string]attachment.Attachment
	PutCalls    int

	getErr, putErr error
}

var _ attachment.Repository = (*Repository)(nil)

func NewInMemRepository(getErr, putErr error) *Repository {
	return &Repository{
		Attachments: make(map[string]attachment.Attachment),
		getErr:      getErr,
		putErr:      putErr,
	}
}

func (r *Repository) Get(_ context.Context, id string) (attachment.Attachment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getErr != nil {
		return attachment.Attachment{}, false, r.getErr
	}

	a, ok := r.Attachments[id]

	return a, ok, nil
}

func (r *Repository) Put(_ context.Context, a attachment.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.PutCalls++
	if r.putErr != nil {
		return r.putErr
	}

	r.Attachments[a.ID] = a

	return nil
}
