package server

import (
	"context"
	"encoding/json"
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/addon-auth/internal/attachment"
	"github.com/openkcm/addon-auth/internal/serviceerr"
)

const (
	viewAuthorization  = "authorization"
	viewDiscovery      = "addon-discovery"
	viewClosePopUp     = "close-pop-up"
	viewSignOut        = "sign-out"
	viewOptions        = "attachment-options"
	viewCreated        = "create-attachment"
	viewShowAttachment = "show-content-attachment"
	viewStatus         = "status"
	viewError          = "error"
	authorizePath      = "/authorize"
	contentTypeJSON    = "application/json"
	headerContentType  = "Content-Type"
)

// view is the JSON document every endpoint answers with. View names the
// page the add-on frame should show.
type view struct {
	View         string              `json:"view"`
	AuthorizeURL string              `json:"authorizeUrl,omitempty"`
	Options      []attachment.Option `json:"options,omitempty"`
	Attachments  []attachment.Ref    `json:"attachments,omitempty"`
	Attachment   *attachment.View    `json:"attachment,omitempty"`
	State        string              `json:"state,omitempty"`
	Error        *errorBody          `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeView(ctx context.Context, w http.ResponseWriter, status int, v view) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slogctx.Warn(ctx, "Failed to write response", "error", err)
	}
}

// writeError renders err. Failures that a fresh sign-in fixes send the user
// to the authorization view, everything else to the error view.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	se := serviceerr.As(err)
	status := se.HTTPStatus()

	if status >= http.StatusInternalServerError {
		slogctx.Error(ctx, "Request failed", "error", err, "code", se.Err)
	} else {
		slogctx.Info(ctx, "Request rejected", "error", err, "code", se.Err)
	}

	v := view{
		View: viewError,
		Error: &errorBody{
			Code:    string(se.Err),
			Message: se.Description,
		},
	}
	if serviceerr.RecoveryFor(se) == serviceerr.RecoveryReauthorize {
		v.View = viewAuthorization
		v.AuthorizeURL = authorizePath
	}

	writeView(ctx, w, status, v)
}
