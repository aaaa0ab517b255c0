package chaos

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Chaos injects seeded drops and delays into inbound feed frames
type Chaos struct {
	cfg    Config
	logger *zap.Logger
	rng    *rand.Rand
	mu     sync.Mutex
	start  time.Time
}

// New creates a new Chaos instance. A nil *Chaos is valid and never injects.
func New(cfg *Config, logger *zap.Logger) *Chaos {
	c := &Chaos{
		cfg:    *cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		start:  time.Now(),
	}

	if cfg.Profile != "" {
		dropPct, delayMin, delayMax, err := ParseProfile(cfg.Profile)
		if err != nil {
			logger.Warn("failed to parse chaos profile", zap.String("profile", cfg.Profile), zap.Error(err))
		} else {
			if dropPct > 0 {
				c.cfg.DropPct = dropPct
			}
			if delayMin > 0 || delayMax > 0 {
				c.cfg.DelayMsMin = delayMin
				c.cfg.DelayMsMax = delayMax
			}
		}
	}

	if c.cfg.Enabled {
		logger.Warn("chaos injection enabled",
			zap.String("target_op", c.cfg.TargetOp),
			zap.Int("drop_pct", c.cfg.DropPct),
			zap.Int("delay_ms_min", c.cfg.DelayMsMin),
			zap.Int("delay_ms_max", c.cfg.DelayMsMax),
			zap.Int64("seed", c.cfg.Seed),
		)
	}

	return c
}

// EnabledFor checks if chaos applies to the given operation
func (c *Chaos) EnabledFor(op string) bool {
	if c == nil || !c.cfg.Enabled {
		return false
	}

	// Window expired
	if c.cfg.WindowMs > 0 && time.Since(c.start).Milliseconds() > int64(c.cfg.WindowMs) {
		return false
	}

	if c.cfg.TargetOp != "" && c.cfg.TargetOp != op {
		return false
	}

	return true
}

// MaybeDelay sleeps for a random delay in the configured range, or until ctx is done
func (c *Chaos) MaybeDelay(ctx context.Context, op string) error {
	if !c.EnabledFor(op) {
		return nil
	}
	if c.cfg.DelayMsMin == 0 && c.cfg.DelayMsMax == 0 {
		return nil
	}

	c.mu.Lock()
	delayMs := c.cfg.DelayMsMin
	if c.cfg.DelayMsMax > c.cfg.DelayMsMin {
		delayMs += c.rng.Intn(c.cfg.DelayMsMax - c.cfg.DelayMsMin + 1)
	}
	c.mu.Unlock()

	if delayMs <= 0 {
		return nil
	}

	c.logger.Debug("chaos delay injected",
		zap.String("op", op),
		zap.Int("delay_ms", delayMs),
	)

	timer := time.NewTimer(time.Duration(delayMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MaybeDrop returns true if the frame should be discarded
func (c *Chaos) MaybeDrop(op string) bool {
	if !c.EnabledFor(op) || c.cfg.DropPct == 0 {
		return false
	}

	c.mu.Lock()
	drop := c.rng.Intn(100) < c.cfg.DropPct
	c.mu.Unlock()

	if drop {
		c.logger.Debug("chaos drop injected", zap.String("op", op))
	}

	return drop
}
