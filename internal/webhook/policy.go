package webhook

import (
	"time"

	"gamecredit-platform/internal/settings"
)

// Policy is the retry policy applied to one attempt.
type Policy struct {
	// MaxRetries is the total number of attempts per delivery.
	MaxRetries       int
	BaseDelay        time.Duration
	Timeout          time.Duration
	FailureThreshold int
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 5 * time.Second
	}
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = 10
	}
	return p
}

// Merge applies the non-zero platform settings on top of p.
func (p Policy) Merge(s settings.WebhookPolicy) Policy {
	if s.MaxRetries > 0 {
		p.MaxRetries = s.MaxRetries
	}
	if s.RetryDelaySeconds > 0 {
		p.BaseDelay = time.Duration(s.RetryDelaySeconds) * time.Second
	}
	if s.TimeoutSeconds > 0 {
		p.Timeout = time.Duration(s.TimeoutSeconds) * time.Second
	}
	if s.FailureThreshold > 0 {
		p.FailureThreshold = s.FailureThreshold
	}
	return p
}

// Backoff is the wait after failed attempt n (1-based): base * 2^(n-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		attempt = 20
	}
	return base << (attempt - 1)
}
