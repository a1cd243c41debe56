package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"mission_rewards/internal/domain"
)

type ErrorKind string

const (
	KindDatabase   ErrorKind = "database"
	KindNetwork    ErrorKind = "network"
	KindRateLimit  ErrorKind = "rate_limit"
	KindTimeout    ErrorKind = "timeout"
	KindValidation ErrorKind = "validation"
	KindBusiness   ErrorKind = "business"
	KindCircuit    ErrorKind = "circuit_open"
	KindUnknown    ErrorKind = "unknown"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Classification describes an error for logging and retry decisions.
type Classification struct {
	Kind      ErrorKind
	Severity  Severity
	Retryable bool
}

// HTTPStatusError is returned by outbound clients for non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown, Severity: SeverityLow}
	}

	var statusErr *HTTPStatusError
	var netErr net.Error

	switch {
	case errors.Is(err, ErrCircuitOpen):
		return Classification{Kind: KindCircuit, Severity: SeverityMedium}
	case errors.Is(err, domain.ErrValidation):
		return Classification{Kind: KindValidation, Severity: SeverityLow}
	case domain.IsBusiness(err):
		return Classification{Kind: KindBusiness, Severity: SeverityLow}
	case errors.Is(err, context.DeadlineExceeded):
		return Classification{Kind: KindTimeout, Severity: SeverityMedium, Retryable: true}
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == 429 {
			return Classification{Kind: KindRateLimit, Severity: SeverityMedium, Retryable: true}
		}
		if statusErr.StatusCode >= 500 {
			return Classification{Kind: KindNetwork, Severity: SeverityHigh, Retryable: true}
		}
		return Classification{Kind: KindNetwork, Severity: SeverityMedium}
	case errors.As(err, &netErr):
		return Classification{Kind: KindNetwork, Severity: SeverityHigh, Retryable: true}
	case domain.IsTransient(err):
		return Classification{Kind: KindDatabase, Severity: SeverityHigh, Retryable: true}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return Classification{Kind: KindNetwork, Severity: SeverityHigh, Retryable: true}
	case strings.Contains(msg, "timeout"):
		return Classification{Kind: KindTimeout, Severity: SeverityMedium, Retryable: true}
	}
	return Classification{Kind: KindUnknown, Severity: SeverityMedium}
}

// IsRetryableNetwork retries 5xx, 429, timeouts and transport errors.
func IsRetryableNetwork(err error) bool {
	return Classify(err).Retryable
}
