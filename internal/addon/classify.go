package addon

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/openkcm/addon-auth/internal/serviceerr"
)

// Markers the API puts in front of the message of a 403 answer about the
// add-on token of the request.
const (
	markerInvalidAddOnToken = "@InvalidAddOnToken"
	markerExpiredAddOnToken = "@ExpiredAddOnToken"
)

// Classify maps a failed API call onto the error taxonomy. Errors that are
// already classified pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var classified *serviceerr.Error
	if errors.As(err, &classified) {
		return err
	}

	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.ErrorCode == "invalid_grant" {
		return fmt.Errorf("%w: %w", serviceerr.ErrInvalidGrant, err)
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	switch {
	case apiErr.Code == http.StatusForbidden && strings.HasPrefix(apiErr.Message, markerInvalidAddOnToken):
		return fmt.Errorf("%w: %w", serviceerr.ErrInvalidAddOnToken, err)
	case apiErr.Code == http.StatusForbidden && strings.HasPrefix(apiErr.Message, markerExpiredAddOnToken):
		return fmt.Errorf("%w: %w", serviceerr.ErrExpiredAddOnToken, err)
	case apiErr.Code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", serviceerr.ErrUnauthenticated, err)
	case apiErr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", serviceerr.ErrResourceNotFound, err)
	default:
		return fmt.Errorf("%w: %w", serviceerr.Upstream(apiErr.Code, upstreamMessage(apiErr)), err)
	}
}

// upstreamMessage prefers the message of the error envelope over the raw body.
func upstreamMessage(apiErr *googleapi.Error) string {
	if apiErr.Message != "" {
		return apiErr.Message
	}

	return strings.TrimSpace(apiErr.Body)
}
