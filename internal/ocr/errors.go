package ocr

import (
	"errors"
	"fmt"
)

// Common OCR processing errors
var (
	// ErrEngineUnavailable is returned when an engine's backend is not
	// installed or not configured. The coordinator recovers by moving to the
	// next engine in its order.
	ErrEngineUnavailable = errors.New("OCR engine is not available")

	// ErrNoTextRecognized is returned when an engine ran but produced no
	// usable text. Treated like ErrEngineUnavailable for fallback purposes.
	ErrNoTextRecognized = errors.New("no text recognized in image")

	// ErrAllEnginesFailed is returned when every engine in the fallback
	// order was unavailable or produced nothing. The asset is marked failed;
	// the batch continues.
	ErrAllEnginesFailed = errors.New("all OCR engines failed or were unavailable")

	// ErrUnsupportedImage is returned when the image bytes cannot be decoded
	// as PNG, JPEG, GIF or WebP.
	ErrUnsupportedImage = errors.New("unsupported or corrupted image")

	// ErrImageTooLarge is returned when the image exceeds the maximum size
	// accepted for synchronous cloud processing.
	ErrImageTooLarge = errors.New("image exceeds the maximum size limit (20MB)")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS environment variables are configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")
)

// OCRError wraps errors with additional context about the recognition failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "Extract", "Recognize").
	Op string

	// Engine is the engine involved, empty for coordinator-level failures.
	Engine string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	switch {
	case e.Engine != "" && e.Details != "":
		return fmt.Sprintf("ocr: %s (%s) failed: %s: %v", e.Op, e.Engine, e.Details, e.Err)
	case e.Engine != "":
		return fmt.Sprintf("ocr: %s (%s) failed: %v", e.Op, e.Engine, e.Err)
	case e.Details != "":
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	default:
		return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op, engine string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Engine:  engine,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op, engine string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err // Already wrapped
	}

	return NewOCRError(op, engine, err, details)
}
