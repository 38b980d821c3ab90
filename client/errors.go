package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/ecrin/mdr-browse/chunks"
)

// DescribeError splits err into a one-line message for the user and an
// optional details block (the backend's JSON error body when there is one).
func DescribeError(err error) (message, details string) {
	if err == nil {
		return "", ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		message = apiErr.Reason
		if message == "" {
			message = apiErr.Error()
		}
		if len(apiErr.Body) > 0 {
			var buf bytes.Buffer
			if json.Indent(&buf, apiErr.Body, "", "  ") == nil {
				details = buf.String()
			} else {
				details = strings.TrimSpace(string(apiErr.Body))
			}
		}
		return message, details
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "request cancelled", ""
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out", ""
	case errors.As(err, &netErr) && netErr.Timeout():
		return "request timed out", err.Error()
	case errors.Is(err, chunks.ErrMalformedChunk):
		return "backend returned an invalid page", err.Error()
	}

	var fetchErr *chunks.FetchError
	if errors.As(err, &fetchErr) && fetchErr.Err != nil {
		return fetchErr.Err.Error(), ""
	}
	return err.Error(), ""
}
