package cache

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Verdicts stores JSON-encoded engine results keyed by operation, engine
// fingerprint and input. Backend errors are logged and treated as misses.
type Verdicts struct {
	backend     Cache
	fingerprint string
	logger      *zap.Logger
}

// NewVerdicts wraps a backend. A nil backend disables caching.
func NewVerdicts(backend Cache, fingerprint string, logger *zap.Logger) *Verdicts {
	if backend == nil {
		backend = Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verdicts{backend: backend, fingerprint: fingerprint, logger: logger}
}

// Lookup decodes a cached result into dst and reports whether it was found
func (v *Verdicts) Lookup(ctx context.Context, op, input string, dst interface{}) bool {
	data, err := v.backend.Get(ctx, VerdictKey(op, v.fingerprint, input))
	if err != nil {
		if !IsCacheMiss(err) {
			v.logger.Warn("verdict cache read failed", zap.String("operation", op), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		v.logger.Warn("discarding corrupt verdict", zap.String("operation", op), zap.Error(err))
		return false
	}
	return true
}

// Store caches result under the default TTL
func (v *Verdicts) Store(ctx context.Context, op, input string, result interface{}) {
	data, err := json.Marshal(result)
	if err != nil {
		v.logger.Warn("verdict not cacheable", zap.String("operation", op), zap.Error(err))
		return
	}
	if err := v.backend.Set(ctx, VerdictKey(op, v.fingerprint, input), data, 0); err != nil {
		v.logger.Warn("verdict cache write failed", zap.String("operation", op), zap.Error(err))
	}
}

// Close closes the backend
func (v *Verdicts) Close() error {
	return v.backend.Close()
}
