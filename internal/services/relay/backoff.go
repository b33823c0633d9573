package relay

import "time"

type BackoffConfig struct {
	Step1 time.Duration // default: 5 seconds
	Step2 time.Duration // default: 30 seconds
	Step3 time.Duration // default: 2 minutes
	Step4 time.Duration // default: 10 minutes
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Step1: 5 * time.Second,
		Step2: 30 * time.Second,
		Step3: 2 * time.Minute,
		Step4: 10 * time.Minute,
	}
}

// Backoff задаёт паузу перед повторной публикацией события.
type Backoff struct {
	cfg BackoffConfig
}

func NewBackoff(cfg BackoffConfig) *Backoff {
	def := DefaultBackoffConfig()
	if cfg.Step1 <= 0 {
		cfg.Step1 = def.Step1
	}
	if cfg.Step2 <= 0 {
		cfg.Step2 = def.Step2
	}
	if cfg.Step3 <= 0 {
		cfg.Step3 = def.Step3
	}
	if cfg.Step4 <= 0 {
		cfg.Step4 = def.Step4
	}
	return &Backoff{cfg: cfg}
}

// Delay по числу уже сделанных попыток (attempts увеличивается при захвате события).
func (b *Backoff) Delay(attempts int32) time.Duration {
	switch {
	case attempts <= 1:
		return b.cfg.Step1
	case attempts == 2:
		return b.cfg.Step2
	case attempts == 3:
		return b.cfg.Step3
	default:
		return b.cfg.Step4
	}
}
