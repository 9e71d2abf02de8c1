package apperror

// Code represents a unique error code
type Code string

const (
	// Sizing outcome
	CodeNoOpportunity Code = "NO_OPPORTUNITY"

	// Pricing model preconditions
	CodeInvalidReserves       Code = "INVALID_RESERVES"
	CodeInvalidAmount         Code = "INVALID_AMOUNT"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeInvalidFee            Code = "INVALID_FEE"

	// Execution-time staleness
	CodeSlippageExceeded Code = "SLIPPAGE_EXCEEDED"
	CodeDeadlineExpired  Code = "DEADLINE_EXPIRED"

	// Borrow-and-repay guard
	CodeUnauthorizedCallback Code = "UNAUTHORIZED_CALLBACK"
	CodeRepaymentShortfall   Code = "REPAYMENT_SHORTFALL"

	// External venues and ledger
	CodeAdapterError Code = "ADAPTER_ERROR"

	CodeInvalidState       Code = "INVALID_STATE"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeUnknown            Code = "UNKNOWN_ERROR"
)

var messages = map[Code]string{
	CodeNoOpportunity:         "no profitable arbitrage direction",
	CodeInvalidReserves:       "reserve is zero",
	CodeInvalidAmount:         "amount is zero or out of range",
	CodeInsufficientLiquidity: "requested output exceeds reserve",
	CodeInvalidFee:            "malformed fee schedule",
	CodeSlippageExceeded:      "output below minimum",
	CodeDeadlineExpired:       "deadline passed before execution",
	CodeUnauthorizedCallback:  "callback from unexpected caller",
	CodeRepaymentShortfall:    "repayment below venue requirement",
	CodeAdapterError:          "venue or ledger call failed",
	CodeInvalidState:          "illegal state transition",
	CodeConfigurationError:    "invalid configuration",
	CodeUnknown:               "unknown error",
}

// Sentinels for errors.Is comparisons.
var (
	ErrNoOpportunity         = &AppError{Code: CodeNoOpportunity}
	ErrInvalidReserves       = &AppError{Code: CodeInvalidReserves}
	ErrInvalidAmount         = &AppError{Code: CodeInvalidAmount}
	ErrInsufficientLiquidity = &AppError{Code: CodeInsufficientLiquidity}
	ErrInvalidFee            = &AppError{Code: CodeInvalidFee}
	ErrSlippageExceeded      = &AppError{Code: CodeSlippageExceeded}
	ErrDeadlineExpired       = &AppError{Code: CodeDeadlineExpired}
	ErrUnauthorizedCallback  = &AppError{Code: CodeUnauthorizedCallback}
	ErrRepaymentShortfall    = &AppError{Code: CodeRepaymentShortfall}
	ErrAdapter               = &AppError{Code: CodeAdapterError}
	ErrInvalidState          = &AppError{Code: CodeInvalidState}
	ErrConfiguration         = &AppError{Code: CodeConfigurationError}
)
