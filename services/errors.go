// services/errors.go
package services

import "errors"

// Error kinds returned by the points engine. Callers match them with errors.Is;
// storage failures are wrapped around them with %w.
var (
	ErrInvalidAmount      = errors.New("invalid points amount")
	ErrUserNotFound       = errors.New("points account not found")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrRewardNotFound     = errors.New("reward not found or inactive")
	ErrTierTooLow         = errors.New("membership tier too low for reward")
	ErrDuplicateSource    = errors.New("points already credited for this source")
	ErrInvalidTierTable   = errors.New("invalid tier table")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidReward      = errors.New("invalid reward definition")
)
