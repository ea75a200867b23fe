package service

import "math/rand/v2"

// Defaults for the mapper tunables.
const (
	defaultMessageReadChunkSize = 100
	defaultExpungeChunkSize     = 50
	defaultFlagsUpdateMaxRetry  = 1000

	defaultReadRepairChanceMax        = 0.1
	defaultReadRepairChanceOneHundred = 0.01
)

// Config carries the mapper tunables.
type Config struct {
	// MessageReadChunkSize bounds the number of concurrent content fetches
	// during a range scan.
	MessageReadChunkSize int

	// ExpungeChunkSize bounds how many uids one delete round processes.
	ExpungeChunkSize int

	// FlagsUpdateMaxRetry bounds the rounds a contended flag update is
	// retried before the remaining identities are given up on.
	FlagsUpdateMaxRetry int

	// ReadRepairChanceMax and ReadRepairChanceOneHundred drive the detached
	// counter repair dice roll: chance = min(max, oneHundred*100/unseen).
	// Both zero disables detached repair.
	ReadRepairChanceMax        float64
	ReadRepairChanceOneHundred float64

	// MessageWriteStrongConsistency selects strong reads when the engine
	// re-reads authoritative state for failed flag updates.
	MessageWriteStrongConsistency bool

	// Rand is the dice roll source, [0,1). Injected so tests can make the
	// detached repair decision deterministic.
	Rand func() float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MessageReadChunkSize:          defaultMessageReadChunkSize,
		ExpungeChunkSize:              defaultExpungeChunkSize,
		FlagsUpdateMaxRetry:           defaultFlagsUpdateMaxRetry,
		ReadRepairChanceMax:           defaultReadRepairChanceMax,
		ReadRepairChanceOneHundred:    defaultReadRepairChanceOneHundred,
		MessageWriteStrongConsistency: true,
		Rand:                          rand.Float64,
	}
}

// withDefaults replaces unusable values; explicitly configured values are
// kept, including zero repair chances (detached repair off).
func (c Config) withDefaults() Config {
	if c.MessageReadChunkSize <= 0 {
		c.MessageReadChunkSize = defaultMessageReadChunkSize
	}
	if c.ExpungeChunkSize <= 0 {
		c.ExpungeChunkSize = defaultExpungeChunkSize
	}
	if c.FlagsUpdateMaxRetry <= 0 {
		c.FlagsUpdateMaxRetry = defaultFlagsUpdateMaxRetry
	}
	if c.ReadRepairChanceMax < 0 {
		c.ReadRepairChanceMax = 0
	}
	if c.ReadRepairChanceOneHundred < 0 {
		c.ReadRepairChanceOneHundred = 0
	}
	if c.Rand == nil {
		c.Rand = rand.Float64
	}
	return c
}
