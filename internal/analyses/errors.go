package analyses

import (
	"errors"
	"fmt"

	"vendorsec-backend/internal/shared/apperr"
)

var (
	ErrNotFound          = fmt.Errorf("analysis %w", apperr.ErrNotFound)
	ErrActiveJob         = apperr.New(apperr.ErrConflict, "an analysis is already in progress for this session")
	ErrNotReady          = apperr.New(apperr.ErrNotReady, "analysis results are not ready")
	ErrIllegalTransition = errors.New("illegal job transition")
)
