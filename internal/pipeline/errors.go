package pipeline

import (
	"errors"

	"github.com/andresmejia3/posepipe/internal/ingest"
	"github.com/andresmejia3/posepipe/internal/pool"
)

// Only source-open and sink-write failures are fatal by default. Worker
// failures are absorbed into tombstoned slots and a drain timeout is reported
// in the Report, not as an error. ErrWorkerTransformFailure surfaces only under
// the abort policy and ErrIncompleteOutput only in strict mode.
var (
	ErrSourceUnavailable      = ingest.ErrSourceUnavailable
	ErrWorkerTransformFailure = pool.ErrWorkerTransformFailure
	ErrSinkWriteFailure       = errors.New("sink write failure")
	ErrIncompleteOutput       = errors.New("incomplete output")
)
