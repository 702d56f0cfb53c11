// Package attachment creates add-on attachments upstream and keeps the image
// each of them shows.
package attachment

import (
	"context"
	"fmt"

	slogctx "github.com/veqryn/slog-context"

	classroomapi "google.golang.org/api/classroom/v1"

	"github.com/openkcm/addon-auth/internal/addon"
	"github.com/openkcm/addon-auth/internal/classroom"
	"github.com/openkcm/addon-auth/internal/serviceerr"
	"github.com/openkcm/addon-auth/internal/session"
)

const imagePathPrefix = "images/"

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

const (
	messageStudent = "Take a look at the following landmark image!"
	messageTeacher = "You attached the following landmark images to this assignment."
)

// Caller runs an authorized operation for a browser session.
type Caller interface {
	Call(ctx context.Context, sid string, op addon.Operation) error
}

type CreateRequest struct {
	CourseID   string
	ItemID     string
	AddOnToken string
	// Selection holds the image filenames to attach.
	Selection []string
}

// Ref pairs a created attachment with its image.
type Ref struct {
	AttachmentID  string `json:"attachmentId"`
	Title         string `json:"title"`
	ImageFilename string `json:"imageFilename"`
}

type View struct {
	AttachmentID  string `json:"attachmentId"`
	ImageFilename string `json:"imageFilename"`
	ImagePath     string `json:"imagePath"`
	Role          Role   `json:"role"`
	Message       string `json:"message"`
}

type Service struct {
	caller  Caller
	repo    Repository
	viewURL string
}

// NewService builds the handler. viewURL is where the host loads an
// attachment, for teachers and students alike.
func NewService(caller Caller, repo Repository, viewURL string) *Service {
	return &Service{
		caller:  caller,
		repo:    repo,
		viewURL: viewURL,
	}
}

// Create makes one attachment per selected image and records each of them.
// An empty selection fails before anything is sent.
func (s *Service) Create(ctx context.Context, sid string, req CreateRequest) ([]Ref, error) {
	if len(req.Selection) == 0 {
		return nil, serviceerr.ErrNoSelection
	}

	refs := make([]Ref, 0, len(req.Selection))
	for i, filename := range req.Selection {
		title := fmt.Sprintf("Attachment %d", i+1)

		var created *classroomapi.AddOnAttachment
		err := s.caller.Call(ctx, sid, func(ctx context.Context, api *classroom.Client) error {
			var err error
			created, err = api.CreateAddOnAttachment(ctx, req.CourseID, req.ItemID, req.AddOnToken, &classroomapi.AddOnAttachment{
				Title:          title,
				TeacherViewUri: &classroomapi.EmbedUri{Uri: s.viewURL},
				StudentViewUri: &classroomapi.EmbedUri{Uri: s.viewURL},
			})

			return err
		})
		if err != nil {
			return refs, err
		}

		if err := s.repo.Put(ctx, Attachment{ID: created.Id, ImageFilename: filename}); err != nil {
			return refs, fmt.Errorf("storing attachment: %w", err)
		}

		refs = append(refs, Ref{AttachmentID: created.Id, Title: title, ImageFilename: filename})
	}

	slogctx.Info(ctx, "Attachments created", "count", len(refs), "course_id", req.CourseID, "item_id", req.ItemID)

	return refs, nil
}

// Load returns the attachment as the current user should see it.
func (s *Service) Load(ctx context.Context, sid string, rc session.RequestContext) (View, error) {
	var addOnCtx *classroomapi.AddOnContext
	err := s.caller.Call(ctx, sid, func(ctx context.Context, api *classroom.Client) error {
		var err error
		addOnCtx, err = api.GetAddOnContext(ctx, rc.CourseID, rc.ItemID, rc.AttachmentID, rc.AddOnToken)

		return err
	})
	if err != nil {
		return View{}, err
	}

	a, found, err := s.repo.Get(ctx, rc.AttachmentID)
	if err != nil {
		return View{}, fmt.Errorf("loading attachment: %w", err)
	}
	if !found {
		slogctx.Warn(ctx, "Attachment id unknown to this add-on", "attachment_id", rc.AttachmentID)
		return View{}, serviceerr.ErrAttachmentNotFound
	}

	view := View{
		AttachmentID:  a.ID,
		ImageFilename: a.ImageFilename,
		ImagePath:     imagePathPrefix + a.ImageFilename,
		Role:          RoleTeacher,
		Message:       messageTeacher,
	}
	if addOnCtx.StudentContext != nil {
		view.Role = RoleStudent
		view.Message = messageStudent
	}

	return view, nil
}
