package attachment

import "context"

// Attachment is the local record of an add-on attachment created upstream.
// It is never changed after creation.
type Attachment struct {
	ID            string
	ImageFilename string
}

type Repository interface {
	Get(ctx context.Context, id string) (Attachment, bool, error)
	Put(ctx context.Context, a Attachment) error
}
