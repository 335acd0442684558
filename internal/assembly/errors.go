package assembly

import (
	"errors"

	"github.com/stillcast/stillcast/internal/frames"
	"github.com/stillcast/stillcast/internal/media"
)

// ErrOutputMissing is returned when the encoder reported success but no
// non-empty file is observable at the output path.
var ErrOutputMissing = errors.New("output file missing or empty")

// Failure codes exposed to callers. Each maps to exactly one sentinel
// error of the pipeline taxonomy.
const (
	CodeAssetNotFound    = "ASSET_NOT_FOUND"
	CodeUnreadableAsset  = "UNREADABLE_ASSET"
	CodeInvalidDuration  = "INVALID_DURATION"
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeEncodingError    = "ENCODING_ERROR"
	CodeOutputWriteError = "OUTPUT_WRITE_ERROR"
	CodeOutputMissing    = "OUTPUT_MISSING"
	codeUnknown          = "UNKNOWN"
)

// ClassifyFailure maps a pipeline error to its caller-visible failure
// code. Wrapped causes are resolved with errors.Is, so the five probe
// and encode failure classes stay distinguishable end to end.
func ClassifyFailure(err error) string {
	switch {
	case errors.Is(err, media.ErrAssetNotFound):
		return CodeAssetNotFound
	case errors.Is(err, media.ErrUnreadableAsset):
		return CodeUnreadableAsset
	case errors.Is(err, media.ErrInvalidDuration):
		return CodeInvalidDuration
	case errors.Is(err, frames.ErrInvalidParameter):
		return CodeInvalidParameter
	case errors.Is(err, media.ErrOutputWrite):
		return CodeOutputWriteError
	case errors.Is(err, media.ErrEncoding):
		return CodeEncodingError
	case errors.Is(err, ErrOutputMissing):
		return CodeOutputMissing
	default:
		return codeUnknown
	}
}
