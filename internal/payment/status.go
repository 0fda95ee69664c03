package payment

// Status is the gateway-reported payment status. The gateway may introduce
// new values, so it is kept as an open string type.
type Status string

const (
	StatusNew             Status = "NEW"
	StatusFormShowed      Status = "FORM_SHOWED"
	StatusDeadlineExpired Status = "DEADLINE_EXPIRED"
	StatusCanceled        Status = "CANCELED"
	StatusAuthorizing     Status = "AUTHORIZING"
	StatusAuthorized      Status = "AUTHORIZED"
	StatusAuthFail        Status = "AUTH_FAIL"
	StatusRejected        Status = "REJECTED"
	StatusConfirming      Status = "CONFIRMING"
	StatusConfirmed       Status = "CONFIRMED"
	StatusReversing       Status = "REVERSING"
	StatusReversed        Status = "REVERSED"
	StatusRefunding       Status = "REFUNDING"
	StatusPartialRefunded Status = "PARTIAL_REFUNDED"
	StatusRefunded        Status = "REFUNDED"
)

// stages orders the known statuses along the payment lifecycle.
var stages = map[Status]int{
	StatusNew:             1,
	StatusFormShowed:      2,
	StatusAuthorizing:     3,
	StatusDeadlineExpired: 4,
	StatusCanceled:        4,
	StatusAuthFail:        4,
	StatusRejected:        4,
	StatusAuthorized:      4,
	StatusConfirming:      5,
	StatusReversing:       5,
	StatusConfirmed:       6,
	StatusReversed:        6,
	StatusRefunding:       7,
	StatusPartialRefunded: 8,
	StatusRefunded:        9,
}

// Stage returns the lifecycle rank of s; 0 for empty or unknown statuses.
func (s Status) Stage() int {
	return stages[s]
}

// IsRegression reports whether moving from s to next goes back to an
// earlier known stage.
func (s Status) IsRegression(next Status) bool {
	from, to := s.Stage(), next.Stage()
	return from > 0 && to > 0 && to < from
}

// IsPending reports whether the payment may still change without merchant action.
func (s Status) IsPending() bool {
	switch s {
	case StatusNew, StatusFormShowed, StatusAuthorizing, StatusAuthorized, StatusConfirming:
		return true
	}
	return false
}

// PendingStatuses is the set polled by the status sync job.
var PendingStatuses = []Status{
	StatusNew, StatusFormShowed, StatusAuthorizing, StatusAuthorized, StatusConfirming,
}

// Taxation is the merchant's taxation scheme printed on receipts.
type Taxation string

const (
	TaxationOSN              Taxation = "osn"
	TaxationUSNIncome        Taxation = "usn_income"
	TaxationUSNIncomeOutcome Taxation = "usn_income_outcome"
	TaxationENVD             Taxation = "envd"
	TaxationESN              Taxation = "esn"
	TaxationPatent           Taxation = "patent"
)

// Tax is the VAT rate of a receipt item.
type Tax string

const (
	TaxNone   Tax = "none"
	TaxVAT0   Tax = "vat0"
	TaxVAT10  Tax = "vat10"
	TaxVAT18  Tax = "vat18"
	TaxVAT110 Tax = "vat110"
	TaxVAT118 Tax = "vat118"
)
