package sessions

import (
	"fmt"

	"vendorsec-backend/internal/shared/apperr"
)

var (
	ErrNotFound     = fmt.Errorf("session %w", apperr.ErrNotFound)
	ErrFileNotFound = fmt.Errorf("file %w", apperr.ErrNotFound)
)
