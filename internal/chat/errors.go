package chat

import "vendorsec-backend/internal/shared/apperr"

var (
	ErrBusy = apperr.New(apperr.ErrBusy, "a response is still being generated for this session")
)
