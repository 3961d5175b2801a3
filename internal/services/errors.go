package services

import "errors"

// Error taxonomy shared by the task and auth services. Handlers map
// these onto HTTP statuses; the first failing check short-circuits an
// operation, so a failed write never touches stored state.
var (
	ErrUnauthenticated  = errors.New("no authenticated user")
	ErrInvalidArgument  = errors.New("missing or invalid required fields")
	ErrTaskNotFound     = errors.New("task not found")
	ErrPermissionDenied = errors.New("task is owned by another user")
)
