package domain

import "errors"

// Failure taxonomy. Session operations report one of these (possibly
// wrapped) through their completion; nothing is thrown across components.
var (
	ErrContextUnavailable      = errors.New("world context unavailable")
	ErrBackendUnavailable      = errors.New("session backend unavailable")
	ErrSessionNotFound         = errors.New("session not found")
	ErrBackendRejected         = errors.New("backend rejected the call")
	ErrBackendReportedFailure  = errors.New("backend reported failure")
	ErrConnectResolutionFailed = errors.New("connect string resolution failed")
	ErrMigrationTimeout        = errors.New("migration timed out")
)

// Admission errors.
var (
	ErrBanned        = errors.New("player is banned")
	ErrSessionFull   = errors.New("SessionFull")
	ErrProtectedBan  = errors.New("player cannot be banned")
	ErrInvalidPlayer = errors.New("invalid player id")
	ErrBanNotFound   = errors.New("ban not found")
)
