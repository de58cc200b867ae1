package worker

import "time"

// Стратегии backoff.
const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

// RetryPolicy — политика повторов инфраструктурных ошибок.
type RetryPolicy struct {
	// MaxAttempts — максимум попыток, включая первую (default: 3).
	MaxAttempts int

	// Backoff — "exponential" (default) или "fixed".
	Backoff string

	// InitialDelay — задержка перед первым повтором (default: 1s).
	InitialDelay time.Duration

	// MaxDelay — верхняя граница задержки (default: 30s).
	MaxDelay time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff == "" {
		p.Backoff = BackoffExponential
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// calculateBackoff вычисляет задержку перед retry.
func calculateBackoff(attempt int, policy RetryPolicy) time.Duration {
	policy = policy.withDefaults()

	var delay time.Duration
	switch policy.Backoff {
	case BackoffExponential:
		// delay = initialDelay * 2^(attempt-1)
		delay = policy.InitialDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > policy.MaxDelay {
				delay = policy.MaxDelay
				break
			}
		}
	default:
		delay = policy.InitialDelay
	}

	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}

	return delay
}
