package engine

import (
	"errors"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// KindOf classifies err for the caller, including storage failures that
// carry no domain kind.
func KindOf(err error) domain.Kind {
	var de *domain.Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &de):
		return de.Kind
	case errors.Is(err, storage.ErrNotFound):
		return domain.KindNotFound
	case errors.Is(err, storage.ErrDuplicateKey), errors.Is(err, storage.ErrVersionConflict):
		return domain.KindState
	case errors.Is(err, storage.ErrInvalidInput):
		return domain.KindValidation
	}
	return domain.KindInternal
}
