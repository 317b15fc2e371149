package thumbnail

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is the parent of all client input errors and maps to
	// HTTP 400.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidURL is returned when a source URL is empty or malformed.
	ErrInvalidURL = fmt.Errorf("%w: invalid url", ErrInvalidInput)

	// ErrInvalidSize is returned for a thumbnail size other than 200 or 400.
	ErrInvalidSize = fmt.Errorf("%w: invalid size", ErrInvalidInput)

	// ErrInvalidID is returned when a thumbnail id is empty or malformed.
	ErrInvalidID = fmt.Errorf("%w: invalid id", ErrInvalidInput)

	// ErrUnsupportedContentType is returned when an upload is not one of
	// the accepted image types.
	ErrUnsupportedContentType = fmt.Errorf("%w: unsupported content type", ErrInvalidInput)

	// ErrEmptyFile is returned when an upload carries no bytes.
	ErrEmptyFile = fmt.Errorf("%w: empty file", ErrInvalidInput)

	// ErrProcessingFailed is returned when an uploaded image cannot be
	// decoded, resized or stored.
	ErrProcessingFailed = errors.New("image processing failed")

	// ErrConfiguration is returned when routes or storages are not set up
	// correctly. A process holding this error must not serve traffic.
	ErrConfiguration = errors.New("configuration error")

	// ErrUploadDisabled is returned when no storage is designated for
	// uploads.
	ErrUploadDisabled = errors.New("uploading is disabled")
)
