package vertex

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/dgallion1/vertexrag/internal/rag"
)

// translate maps a Google API error onto the rag error taxonomy.
// FAILED_PRECONDITION (HTTP 400 with that status, or 412) means the index is
// not ready for the operation; everything else is a ServiceError. A 404 is a
// ServiceError wrapping rag.ErrNotFound.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *googleapi.Error
	if !errors.As(err, &ae) {
		return &rag.ServiceError{Op: op, Err: err}
	}

	switch {
	case ae.Code == http.StatusPreconditionFailed,
		ae.Code == http.StatusBadRequest && isFailedPrecondition(ae):
		return &rag.PreconditionError{Op: op, Err: apiMessage(ae)}
	case ae.Code == http.StatusNotFound:
		return &rag.ServiceError{Op: op, Code: ae.Code, Err: fmt.Errorf("%w: %v", rag.ErrNotFound, apiMessage(ae))}
	default:
		return &rag.ServiceError{Op: op, Code: ae.Code, Err: apiMessage(ae)}
	}
}

func isFailedPrecondition(ae *googleapi.Error) bool {
	if strings.Contains(ae.Body, "FAILED_PRECONDITION") {
		return true
	}
	for _, item := range ae.Errors {
		if strings.EqualFold(item.Reason, "failedPrecondition") {
			return true
		}
	}
	return false
}

func apiMessage(ae *googleapi.Error) error {
	if ae.Message != "" {
		return errors.New(ae.Message)
	}
	return errors.New(http.StatusText(ae.Code))
}
