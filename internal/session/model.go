package session

import (
	"github.com/openkcm/addon-auth/internal/credential"
)

// RequestContext carries the host-embedding identifiers across the steps of
// one add-on flow.
type RequestContext struct {
	CourseID     string `json:"courseId,omitempty"`
	ItemID       string `json:"itemId,omitempty"`
	AttachmentID string `json:"attachmentId,omitempty"`
	AddOnToken   string `json:"addOnToken,omitempty"`
}

// State is everything the server remembers about one browser session.
// PendingNonce and PKCEVerifier are only set between the start of an
// authorization and its callback.
type State struct {
	ID           string                 `json:"id"`
	PendingNonce string                 `json:"pendingNonce,omitempty"`
	PKCEVerifier string                 `json:"pkceVerifier,omitempty"`
	LoginHint    string                 `json:"loginHint,omitempty"`
	Credential   *credential.Credential `json:"credential,omitempty"`
	Request      RequestContext         `json:"request"`
}

func (s State) Pending() bool {
	return s.PendingNonce != ""
}

// merge copies the non-empty fields of rc over the stored context.
func (rc *RequestContext) merge(other RequestContext) {
	if other.CourseID != "" {
		rc.CourseID = other.CourseID
	}
	if other.ItemID != "" {
		rc.ItemID = other.ItemID
	}
	if other.AttachmentID != "" {
		rc.AttachmentID = other.AttachmentID
	}
	if other.AddOnToken != "" {
		rc.AddOnToken = other.AddOnToken
	}
}
