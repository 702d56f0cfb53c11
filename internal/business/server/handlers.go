package server

import (
	"context"
	"fmt"
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/addon-auth/internal/attachment"
	"github.com/openkcm/addon-auth/internal/auth"
	"github.com/openkcm/addon-auth/internal/config"
	"github.com/openkcm/addon-auth/internal/credential"
	"github.com/openkcm/addon-auth/internal/middleware/sessionid"
	"github.com/openkcm/addon-auth/internal/serviceerr"
	"github.com/openkcm/addon-auth/internal/session"
)

const (
	paramCourseID     = "courseId"
	paramItemID       = "itemId"
	paramAttachmentID = "attachmentId"
	paramAddOnToken   = "addOnToken"
	paramLoginHint    = "login_hint"
	paramState        = "state"
	paramCode         = "code"
	paramError        = "error"
)

// AuthFlow is the part of the auth engine the HTTP surface drives.
type AuthFlow interface {
	Discover(ctx context.Context, sid, loginHint string, hintPresent bool) (auth.Route, error)
	BeginAuthorization(ctx context.Context, sid, loginHint string) (auth.Authorization, error)
	HandleCallback(ctx context.Context, sid, receivedState, code string) (credential.Credential, error)
	SignOut(ctx context.Context, sid string) error
	RevokeSession(ctx context.Context, sid string) error
	Status(ctx context.Context, sid string) (auth.FlowState, error)
}

type Attachments interface {
	Create(ctx context.Context, sid string, req attachment.CreateRequest) ([]attachment.Ref, error)
	Load(ctx context.Context, sid string, rc session.RequestContext) (attachment.View, error)
}

type Sessions interface {
	Load(ctx context.Context, sid string) (session.State, error)
	UpdateRequestContext(ctx context.Context, sid string, rc session.RequestContext) (session.RequestContext, error)
	ResolveLoginHint(ctx context.Context, sid, hint string, present bool) (string, error)
	Rotate(ctx context.Context, oldSID, newSID string) error
}

// Services holds what the handlers need.
type Services struct {
	Flow        AuthFlow
	Attachments Attachments
	Sessions    Sessions
}

type addonHandler struct {
	Services

	cookie       config.CookieTemplate
	newSessionID sessionid.Generator
}

func (h *addonHandler) discovery(w http.ResponseWriter, r *http.Request) {
	ctx, sid, ok := h.begin(w, r)
	if !ok {
		return
	}

	loginHint, present := loginHintParam(r)

	route, err := h.Flow.Discover(ctx, sid, loginHint, present)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	if route == auth.RouteAuthorize {
		writeView(ctx, w, http.StatusOK, view{View: viewAuthorization, AuthorizeURL: authorizePath})
		return
	}

	writeView(ctx, w, http.StatusOK, view{View: viewDiscovery})
}

func (h *addonHandler) authorize(w http.ResponseWriter, r *http.Request) {
	ctx, sid, ok := h.begin(w, r)
	if !ok {
		return
	}

	s, err := h.Sessions.Load(ctx, sid)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	authz, err := h.Flow.BeginAuthorization(ctx, sid, s.LoginHint)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	http.Redirect(w, r, authz.URL, http.StatusFound)
}

func (h *addonHandler) callback(w http.ResponseWriter, r *http.Request) {
	ctx, sid, ok := h.begin(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if reason := q.Get(paramError); reason != "" {
		writeError(ctx, w, fmt.Errorf("%w: provider answered %s", serviceerr.ErrNotAuthenticated, reason))
		return
	}

	if _, err := h.Flow.HandleCallback(ctx, sid, q.Get(paramState), q.Get(paramCode)); err != nil {
		writeError(ctx, w, err)
		return
	}

	// a signed-in session never keeps the id it was started with
	rotated := h.newSessionID()
	if err := h.Sessions.Rotate(ctx, sid, rotated); err != nil {
		writeError(ctx, w, err)
		return
	}
	http.SetCookie(w, h.cookie.ToCookie(rotated))

	writeView(ctx, w, http.StatusOK, view{View: viewClosePopUp})
}

func (h *addonHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, sid, ok := h.begin(w, r)
	if !ok {
		return
	}

	if err := h.Flow.SignOut(ctx, sid); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeView(ctx, w, http.StatusOK, view{View: viewSignOut})
}

func (h *addonHandler) revoke(w http.ResponseWriter, r *http.Request) {
	ctx, sid, ok := h.begin(w, r)
	if !ok {
		return
	}

	if err := h.Flow.RevokeSession(ctx, sid); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeView(ctx, w, http.StatusOK, view{View: viewAuthorization, AuthorizeURL: authorizePath})
}

func (h *addonHandler) attachmentOptions(w http.ResponseWriter, r *http.Request) {
	ctx, _, ok := h.begin(w, r)
	if !ok {
		return
	}

	writeView(ctx, w, http.StatusOK, view{View: viewOptions, Options: attachment.Catalog})
}

func (h *addonHandler) createAttachment(w http.ResponseWriter, r *http.Request) {
	ctx, sid, ok := h.begin(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		writeView(ctx, w, http.StatusBadRequest, view{
			View:  viewError,
			Error: &errorBody{Code: "invalid_request", Message: "invalid form body"},
		})
		return
	}

	s, err := h.Sessions.Load(ctx, sid)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	refs, err := h.Attachments.Create(ctx, sid, attachment.CreateRequest{
		CourseID:   s.Request.CourseID,
		ItemID:     s.Request.ItemID,
		AddOnToken: s.Request.AddOnToken,
		Selection:  attachment.SelectionFromForm(r.PostForm),
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeView(ctx, w, http.StatusOK, view{View: viewCreated, Attachments: refs})
}

func (h *addonHandler) loadContentAttachment(w http.ResponseWriter, r *http.Request) {
	ctx, sid, ok := h.begin(w, r)
	if !ok {
		return
	}

	s, err := h.Sessions.Load(ctx, sid)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	v, err := h.Attachments.Load(ctx, sid, s.Request)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeView(ctx, w, http.StatusOK, view{View: viewShowAttachment, Attachment: &v})
}

func (h *addonHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx, sid, ok := h.begin(w, r)
	if !ok {
		return
	}

	state, err := h.Flow.Status(ctx, sid)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeView(ctx, w, http.StatusOK, view{View: viewStatus, State: state.String()})
}

// begin resolves the session of the request and records the host's query
// parameters in it.
func (h *addonHandler) begin(w http.ResponseWriter, r *http.Request) (context.Context, string, bool) {
	ctx := r.Context()

	sid, err := sessionid.FromContext(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return ctx, "", false
	}

	q := r.URL.Query()
	rc := session.RequestContext{
		CourseID:     q.Get(paramCourseID),
		ItemID:       q.Get(paramItemID),
		AttachmentID: q.Get(paramAttachmentID),
		AddOnToken:   q.Get(paramAddOnToken),
	}
	if rc != (session.RequestContext{}) {
		if _, err := h.Sessions.UpdateRequestContext(ctx, sid, rc); err != nil {
			writeError(ctx, w, err)
			return ctx, "", false
		}
		slogctx.Debug(ctx, "Request context updated", "course_id", rc.CourseID, "item_id", rc.ItemID)
	}

	// every host page may carry the hint, not only discovery
	if hint, present := loginHintParam(r); present {
		if _, err := h.Sessions.ResolveLoginHint(ctx, sid, hint, true); err != nil {
			writeError(ctx, w, err)
			return ctx, "", false
		}
	}

	return ctx, sid, true
}

// loginHintParam reports the login_hint query parameter. An empty value is
// still present.
func loginHintParam(r *http.Request) (string, bool) {
	values, present := r.URL.Query()[paramLoginHint]
	if !present || len(values) == 0 {
		return "", present
	}

	return values[0], true
}
