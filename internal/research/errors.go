package research

import (
	"errors"
	"fmt"
)

// QueryGenerationError indicates a product identifier that cannot be
// turned into search queries. It is fatal to that product's research
// but never to the job.
type QueryGenerationError struct {
	ProductID string
	Reason    string
}

func (e *QueryGenerationError) Error() string {
	return fmt.Sprintf("research: cannot build queries for %q: %s", e.ProductID, e.Reason)
}

// IsQueryGenerationError reports whether the error chain contains a
// QueryGenerationError.
func IsQueryGenerationError(err error) bool {
	var qe *QueryGenerationError
	return errors.As(err, &qe)
}
