package contracts

import (
	"fmt"
	"regexp"
	"strconv"
)

// Escrow error codes
const (
	ErrEscrowUnauthorized     uint64 = 200
	ErrEscrowJobNotFound      uint64 = 201
	ErrEscrowInvalidStatus    uint64 = 202
	ErrEscrowNotAgent         uint64 = 203
	ErrEscrowNotPayer         uint64 = 204
	ErrEscrowFeeAlreadyPaid   uint64 = 205
	ErrEscrowInvalidParams    uint64 = 206
	ErrEscrowExpired          uint64 = 207
	ErrEscrowTokenMismatch    uint64 = 208
	ErrRouterJobNotFound      uint64 = 300
	ErrRouterInvalidStatus    uint64 = 301
	ErrRouterNotAgent         uint64 = 302
	ErrRouterExpired          uint64 = 306
	ErrRouterExecutionFailed  uint64 = 309
	ErrRouterExecutorMismatch uint64 = 310
)

var errorNames = map[uint64]string{
	ErrEscrowUnauthorized:     "escrow: unauthorized",
	ErrEscrowJobNotFound:      "escrow: job not found",
	ErrEscrowInvalidStatus:    "escrow: invalid status",
	ErrEscrowNotAgent:         "escrow: not agent",
	ErrEscrowNotPayer:         "escrow: not payer",
	ErrEscrowFeeAlreadyPaid:   "escrow: fee already paid",
	ErrEscrowInvalidParams:    "escrow: invalid parameters",
	ErrEscrowExpired:          "escrow: expired",
	ErrEscrowTokenMismatch:    "escrow: token mismatch",
	ErrRouterJobNotFound:      "router: job not found",
	ErrRouterInvalidStatus:    "router: invalid status",
	ErrRouterNotAgent:         "router: not agent",
	ErrRouterExpired:          "router: expired",
	ErrRouterExecutionFailed:  "router: execution failed",
	ErrRouterExecutorMismatch: "router: executor mismatch",
}

var errCodePattern = regexp.MustCompile(`(?i)\(?err\s+u?(\d+)\)?`)

// ExtractErrorCode finds a contract error code such as "(err u205)" in a message
func ExtractErrorCode(msg string) (uint64, bool) {
	m := errCodePattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	code, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return code, true
}

// DescribeError returns a readable name for a contract error code
func DescribeError(code uint64) string {
	if name, ok := errorNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown contract error u%d", code)
}
