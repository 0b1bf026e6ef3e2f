package reconciliation

import "errors"

var (
	ErrInvalidPeriod  = errors.New("invalid period, expected YYYY-MM-DD")
	ErrReportNotFound = errors.New("reconciliation report not found")
)
