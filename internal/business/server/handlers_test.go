package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/addon-auth/internal/attachment"
	"github.com/openkcm/addon-auth/internal/auth"
	"github.com/openkcm/addon-auth/internal/credential"
	"github.com/openkcm/addon-auth/internal/serviceerr"
	"github.com/openkcm/addon-auth/internal/session"
	sessionmock "github.com/openkcm/addon-auth/internal/session/mock"
)

const testSID = "test-session"

type stubFlow struct {
	route      auth.Route
	routeErr   error
	gotHint    string
	gotPresent bool

	authz    auth.Authorization
	gotLogin string

	callbackErr error
	gotState    string
	gotCode     string

	signOutCalls int
	revokeErr    error
	flowState    auth.FlowState
}

func (s *stubFlow) Discover(_ context.Context, _, hint string, present bool) (auth.Route, error) {
	s.gotHint, s.gotPresent = hint, present
	return s.route, s.routeErr
}

func (s *stubFlow) BeginAuthorization(_ context.Context, _, hint string) (auth.Authorization, error) {
	s.gotLogin = hint
	return s.authz, nil
}

func (s *stubFlow) HandleCallback(_ context.Context, _, state, code string) (credential.Credential, error) {
	s.gotState, s.gotCode = state, code
	return credential.Credential{}, s.callbackErr
}

func (s *stubFlow) SignOut(context.Context, string) error {
	s.signOutCalls++
	return nil
}

func (s *stubFlow) RevokeSession(context.Context, string) error {
	return s.revokeErr
}

func (s *stubFlow) Status(context.Context, string) (auth.FlowState, error) {
	return s.flowState, nil
}

type stubAttachments struct {
	createReq attachment.CreateRequest
	refs      []attachment.Ref
	createErr error

	loadRC  session.RequestContext
	view    attachment.View
	loadErr error
}

func (s *stubAttachments) Create(_ context.Context, _ string, req attachment.CreateRequest) ([]attachment.Ref, error) {
	s.createReq = req
	if len(req.Selection) == 0 {
		return nil, serviceerr.ErrNoSelection
	}

	return s.refs, s.createErr
}

func (s *stubAttachments) Load(_ context.Context, _ string, rc session.RequestContext) (attachment.View, error) {
	s.loadRC = rc
	return s.view, s.loadErr
}

type handlerFixture struct {
	router      http.Handler
	flow        *stubFlow
	attachments *stubAttachments
	sessions    *sessionmock.Repository
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	cfg := testConfig()
	require.NoError(t, initMeters(t.Context(), cfg))

	f := &handlerFixture{
		flow:        &stubFlow{},
		attachments: &stubAttachments{},
		sessions:    sessionmock.NewInMemRepository(nil, nil, nil),
	}
	f.router = newRouter(cfg, Services{
		Flow:        f.flow,
		Attachments: f.attachments,
		Sessions:    session.NewBridge(f.sessions),
	})

	return f
}

func (f *handlerFixture) do(t *testing.T, method, target string, form url.Values) (*httptest.ResponseRecorder, view) {
	t.Helper()

	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.AddCookie(&http.Cookie{Name: "addon_session", Value: testSID})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var v view
	if strings.HasPrefix(rec.Header().Get(headerContentType), contentTypeJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	}

	return rec, v
}

func TestDiscovery(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		route       auth.Route
		wantView    string
		wantHint    string
		wantPresent bool
	}{
		{
			name:     "known user goes to discovery",
			target:   "/addon-discovery",
			route:    auth.RouteDiscovery,
			wantView: viewDiscovery,
		},
		{
			name:        "unknown user is asked to sign in",
			target:      "/addon-discovery?login_hint=subject-one",
			route:       auth.RouteAuthorize,
			wantView:    viewAuthorization,
			wantHint:    "subject-one",
			wantPresent: true,
		},
		{
			name:        "empty hint is still present",
			target:      "/addon-discovery?login_hint=",
			route:       auth.RouteDiscovery,
			wantView:    viewDiscovery,
			wantPresent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.flow.route = tt.route

			rec, v := f.do(t, http.MethodGet, tt.target, nil)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantView, v.View)
			assert.Equal(t, tt.wantHint, f.flow.gotHint)
			assert.Equal(t, tt.wantPresent, f.flow.gotPresent)
		})
	}
}

func TestNewBrowserGetsSessionCookie(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "addon_session", cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestAuthorizeRedirects(t *testing.T) {
	f := newHandlerFixture(t)
	f.sessions.States[testSID] = session.State{ID: testSID, LoginHint: "subject-one"}
	f.flow.authz = auth.Authorization{URL: "https://provider.example.com/auth?state=abc", State: "abc"}

	rec, _ := f.do(t, http.MethodGet, "/authorize", nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://provider.example.com/auth?state=abc", rec.Header().Get("Location"))
	assert.Equal(t, "subject-one", f.flow.gotLogin)
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		err        error
		wantStatus int
		wantView   string
		wantCode   string
	}{
		{
			name:       "success closes the pop-up",
			target:     "/callback?state=abc&code=xyz",
			wantStatus: http.StatusOK,
			wantView:   viewClosePopUp,
		},
		{
			name:       "state mismatch",
			target:     "/callback?state=forged&code=xyz",
			err:        serviceerr.ErrStateMismatch,
			wantStatus: http.StatusUnauthorized,
			wantView:   viewError,
			wantCode:   string(serviceerr.CodeStateMismatch),
		},
		{
			name:       "provider denied access",
			target:     "/callback?error=access_denied&state=abc",
			wantStatus: http.StatusUnauthorized,
			wantView:   viewAuthorization,
			wantCode:   string(serviceerr.CodeNotAuthenticated),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.flow.callbackErr = tt.err

			rec, v := f.do(t, http.MethodGet, tt.target, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantView, v.View)
			if tt.wantCode != "" {
				require.NotNil(t, v.Error)
				assert.Equal(t, tt.wantCode, v.Error.Code)
			}
		})
	}

	t.Run("sign-in moves the session to a new id", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.sessions.States[testSID] = session.State{ID: testSID, LoginHint: "u1"}

		rec, _ := f.do(t, http.MethodGet, "/callback?state=abc&code=xyz", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		rotated := cookies[0].Value
		assert.Equal(t, "addon_session", cookies[0].Name)
		assert.NotEqual(t, testSID, rotated)
		assert.NotContains(t, f.sessions.States, testSID)
		require.Contains(t, f.sessions.States, rotated)
		assert.Equal(t, rotated, f.sessions.States[rotated].ID)
		assert.Equal(t, "u1", f.sessions.States[rotated].LoginHint)
	})

	t.Run("failed sign-in keeps the session id", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.flow.callbackErr = serviceerr.ErrStateMismatch

		rec, _ := f.do(t, http.MethodGet, "/callback?state=forged&code=xyz", nil)

		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("passes state and code through", func(t *testing.T) {
		f := newHandlerFixture(t)

		f.do(t, http.MethodGet, "/callback?state=abc&code=xyz", nil)

		assert.Equal(t, "abc", f.flow.gotState)
		assert.Equal(t, "xyz", f.flow.gotCode)
	})
}

func TestClearAndRevoke(t *testing.T) {
	t.Run("clear signs out", func(t *testing.T) {
		f := newHandlerFixture(t)

		rec, v := f.do(t, http.MethodGet, "/clear", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, viewSignOut, v.View)
		assert.Equal(t, 1, f.flow.signOutCalls)
	})

	t.Run("revoke shows authorization", func(t *testing.T) {
		f := newHandlerFixture(t)

		rec, v := f.do(t, http.MethodGet, "/revoke", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, viewAuthorization, v.View)
	})

	t.Run("revoke failure", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.flow.revokeErr = serviceerr.RevocationFailed(http.StatusBadRequest)

		rec, v := f.do(t, http.MethodGet, "/revoke", nil)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, viewError, v.View)
		require.NotNil(t, v.Error)
		assert.Equal(t, string(serviceerr.CodeRevocationFailed), v.Error.Code)
	})
}

func TestAttachmentOptionsRecordsRequestContext(t *testing.T) {
	f := newHandlerFixture(t)

	rec, v := f.do(t, http.MethodGet, "/attachment-options?courseId=c1&itemId=i1&addOnToken=tok", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, viewOptions, v.View)
	assert.Len(t, v.Options, len(attachment.Catalog))
	assert.Equal(t, session.RequestContext{CourseID: "c1", ItemID: "i1", AddOnToken: "tok"}, f.sessions.States[testSID].Request)
}

func TestCreateAttachment(t *testing.T) {
	t.Run("creates from the session's request context", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.sessions.States[testSID] = session.State{
			ID:      testSID,
			Request: session.RequestContext{CourseID: "c1", ItemID: "i1", AddOnToken: "tok"},
		}
		f.attachments.refs = []attachment.Ref{{AttachmentID: "att-1", Title: "Attachment 1", ImageFilename: "taj-mahal.jpeg"}}

		rec, v := f.do(t, http.MethodPost, "/create-attachment", url.Values{"taj": {"on"}})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, viewCreated, v.View)
		assert.Equal(t, f.attachments.refs, v.Attachments)
		assert.Equal(t, attachment.CreateRequest{
			CourseID:   "c1",
			ItemID:     "i1",
			AddOnToken: "tok",
			Selection:  []string{"taj-mahal.jpeg"},
		}, f.attachments.createReq)
	})

	t.Run("nothing selected", func(t *testing.T) {
		f := newHandlerFixture(t)

		rec, v := f.do(t, http.MethodPost, "/create-attachment", url.Values{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, viewError, v.View)
		require.NotNil(t, v.Error)
		assert.Equal(t, string(serviceerr.CodeNoSelection), v.Error.Code)
	})

	t.Run("invalid add-on token asks to sign out everywhere", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.attachments.createErr = serviceerr.ErrInvalidAddOnToken

		rec, v := f.do(t, http.MethodPost, "/create-attachment", url.Values{"angkor": {"on"}})

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, viewError, v.View)
		require.NotNil(t, v.Error)
		assert.Equal(t, serviceerr.ErrInvalidAddOnToken.Description, v.Error.Message)
	})
}

func TestLoadContentAttachment(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantView   string
	}{
		{
			name:       "shows the attachment",
			wantStatus: http.StatusOK,
			wantView:   viewShowAttachment,
		},
		{
			name:       "unauthenticated asks to sign in",
			err:        serviceerr.ErrUnauthenticated,
			wantStatus: http.StatusUnauthorized,
			wantView:   viewAuthorization,
		},
		{
			name:       "invalid grant asks to sign in",
			err:        serviceerr.ErrInvalidGrant,
			wantStatus: http.StatusUnauthorized,
			wantView:   viewAuthorization,
		},
		{
			name:       "resource not found",
			err:        serviceerr.ErrResourceNotFound,
			wantStatus: http.StatusNotFound,
			wantView:   viewError,
		},
		{
			name:       "unclassified failure",
			err:        assert.AnError,
			wantStatus: http.StatusInternalServerError,
			wantView:   viewError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.attachments.view = attachment.View{AttachmentID: "att-1", ImageFilename: "eiffel-tower.jpeg", Role: attachment.RoleStudent}
			f.attachments.loadErr = tt.err

			rec, v := f.do(t, http.MethodGet, "/load-content-attachment?courseId=c1&itemId=i1&attachmentId=att-1", nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantView, v.View)
			assert.Equal(t, session.RequestContext{CourseID: "c1", ItemID: "i1", AttachmentID: "att-1"}, f.attachments.loadRC)
			if tt.err == nil {
				require.NotNil(t, v.Attachment)
				assert.Equal(t, f.attachments.view, *v.Attachment)
			}
		})
	}
}

func TestHostPagesApplyLoginHint(t *testing.T) {
	tests := []struct {
		name     string
		stored   string
		target   string
		wantHint string
	}{
		{
			name:     "attachment view of a fresh session",
			target:   "/load-content-attachment?courseId=c1&itemId=i1&attachmentId=att-1&login_hint=u1",
			wantHint: "u1",
		},
		{
			name:     "hint replaces the stored one",
			stored:   "u0",
			target:   "/attachment-options?courseId=c1&itemId=i1&login_hint=u1",
			wantHint: "u1",
		},
		{
			name:     "stored hint is kept without a parameter",
			stored:   "u0",
			target:   "/load-content-attachment?courseId=c1&itemId=i1&attachmentId=att-1",
			wantHint: "u0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			if tt.stored != "" {
				f.sessions.States[testSID] = session.State{ID: testSID, LoginHint: tt.stored}
			}

			rec, _ := f.do(t, http.MethodGet, tt.target, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			s, err := session.NewBridge(f.sessions).Load(t.Context(), testSID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHint, s.LoginHint)
		})
	}
}

func TestStatus(t *testing.T) {
	f := newHandlerFixture(t)
	f.flow.flowState = auth.FlowPendingAuthorization

	rec, v := f.do(t, http.MethodGet, "/status", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PENDING_AUTHORIZATION", v.State)
}
