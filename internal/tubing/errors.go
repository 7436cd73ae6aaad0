package tubing

import "errors"

var (
	// ErrInsufficientMembers is returned when fewer than MinMembers members are
	// available, either in the input or after outlier filtering.
	ErrInsufficientMembers = errors.New("insufficient ensemble members")

	// ErrNotImplemented is returned for configurations that are reserved but
	// have no algorithm behind them, such as SeasonDependent.
	ErrNotImplemented = errors.New("not implemented")

	// ErrInvalidThreshold is returned when the threshold fraction is outside (0, 1).
	ErrInvalidThreshold = errors.New("threshold fraction must be in (0, 1)")

	// ErrGridMismatch is returned when member fields do not share one grid.
	ErrGridMismatch = errors.New("member grids do not match")

	// ErrInvalidExtent is returned for an extent with min > max or a malformed string.
	ErrInvalidExtent = errors.New("invalid extent")

	// ErrEmptyExtent is returned when an extent selects no grid point.
	ErrEmptyExtent = errors.New("extent selects no grid points")
)
