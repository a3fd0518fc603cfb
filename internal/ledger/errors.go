package ledger

import "errors"

var (
	ErrDecisionLogWrite = errors.New("decision log write failed")
	ErrReportWrite      = errors.New("report write failed")
	ErrEventWrite       = errors.New("verification event write failed")
)
