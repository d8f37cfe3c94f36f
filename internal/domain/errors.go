package domain

import "errors"

var (
	ErrIntentInvalid    = errors.New("invalid intent")
	ErrContractInvalid  = errors.New("contract validation failed")
	ErrKillSwitchActive = errors.New("kill switch engaged")
	ErrLiveNotEnabled   = errors.New("live trading not enabled")
	ErrAdapterReject    = errors.New("adapter rejected order")
	ErrDispatchTimeout  = errors.New("adapter dispatch timed out")
	ErrInvalidApproval  = errors.New("invalid approval token")
	ErrHealthCheck      = errors.New("health check failed")
	ErrStateCorrupt     = errors.New("persisted state unreadable")
	ErrNotFound         = errors.New("not found")
	ErrCancelled        = errors.New("intent cancelled")
)
