// Package classroom wraps the add-on endpoints of the Classroom API client.
package classroom

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	classroomapi "google.golang.org/api/classroom/v1"
)

// Client runs add-on calls over an HTTP client that already authorizes its
// requests.
type Client struct {
	svc    *classroomapi.Service
	apiKey string
}

// NewClient builds a client on top of httpClient. An empty baseURL keeps the
// public endpoint; apiKey, when set, goes with every call.
func NewClient(ctx context.Context, httpClient *http.Client, baseURL, apiKey string) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if baseURL != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimSuffix(baseURL, "/")+"/"))
	}

	svc, err := classroomapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating classroom service: %w", err)
	}

	return &Client{svc: svc, apiKey: apiKey}, nil
}

func (c *Client) CreateAddOnAttachment(ctx context.Context, courseID, itemID, addOnToken string, attachment *classroomapi.AddOnAttachment) (*classroomapi.AddOnAttachment, error) {
	call := c.svc.Courses.CourseWork.AddOnAttachments.Create(courseID, itemID, attachment).
		AddOnToken(addOnToken).
		Context(ctx)

	return call.Do(c.callOptions()...)
}

// GetAddOnContext tells whether the current user sees the item as a student
// or as a teacher.
func (c *Client) GetAddOnContext(ctx context.Context, courseID, itemID, attachmentID, addOnToken string) (*classroomapi.AddOnContext, error) {
	call := c.svc.Courses.CourseWork.GetAddOnContext(courseID, itemID).
		AttachmentId(attachmentID).
		Context(ctx)
	if addOnToken != "" {
		call = call.AddOnToken(addOnToken)
	}

	return call.Do(c.callOptions()...)
}

func (c *Client) callOptions() []googleapi.CallOption {
	if c.apiKey == "" {
		return nil
	}

	return []googleapi.CallOption{googleapi.QueryParameter("key", c.apiKey)}
}
