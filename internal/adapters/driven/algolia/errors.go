package algolia

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/errs"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

// mapError translates a client error into a domain error kind and returns
// the HTTP status it carried, or zero.
func mapError(op string, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	if errors.Is(err, domain.ErrNotFound) || domain.IsRemote(err) {
		return 0, err
	}
	if e, ok := errs.IsAlgoliaErr(err); ok {
		switch {
		case e.Status == http.StatusNotFound:
			return e.Status, fmt.Errorf("%s: %w: %s", op, domain.ErrNotFound, e.Message)
		case e.Status == http.StatusTooManyRequests:
			return e.Status, fmt.Errorf("%s: %w: rate limited: %s", op, domain.ErrRemoteUnavailable, e.Message)
		case e.Status >= 400 && e.Status < 500:
			return e.Status, fmt.Errorf("%s: %w: %s", op, domain.ErrRemoteRejected, e.Message)
		}
		return e.Status, fmt.Errorf("%s: %w: %s", op, domain.ErrRemoteUnavailable, e.Message)
	}
	return 0, fmt.Errorf("%s: %w: %v", op, domain.ErrRemoteUnavailable, err)
}
