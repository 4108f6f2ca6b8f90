package greenauth

import "time"

// SecurityReport summarizes the security-relevant settings an Engine runs
// with. It never includes the secret.
type SecurityReport struct {
	SigningAlgorithm   string
	SecretBytes        int
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	Argon2             PasswordConfigReport
	RehashOnLogin      bool
	RateLimitingActive bool
	IPThrottleActive   bool
	AuditEnabled       bool
	MetricsEnabled     bool
}

// PasswordConfigReport lists the argon2id cost parameters for new digests.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// SecurityReport describes the effective security settings.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	rateLimiting := e.limiter.Enabled()

	return SecurityReport{
		SigningAlgorithm: string(e.codec.Algorithm()),
		SecretBytes:      len(e.config.JWT.Secret),
		AccessTTL:        e.codec.AccessTTL(),
		RefreshTTL:       e.refresh.TTL(),
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
			MinLength:   e.config.Password.MinLength,
		},
		RehashOnLogin:      e.config.Password.UpgradeOnLogin,
		RateLimitingActive: rateLimiting,
		IPThrottleActive:   rateLimiting && e.config.Security.EnableIPThrottle,
		AuditEnabled:       e.audit != nil,
		MetricsEnabled:     e.metrics.Enabled(),
	}
}
