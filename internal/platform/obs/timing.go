package obs

import (
	"time"

	"go.uber.org/zap"
)

// Time reports an operation's duration, and its error if one occurred, when
// the returned func runs. Meant for deferred use:
//
//	defer obs.Time(log, "engine.PlanTrips")(&err)
func Time(log *zap.Logger, name string) func(errp *error) {
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()

	return func(errp *error) {
		dur := time.Since(start)

		if errp != nil && *errp != nil {
			log.Warn("op failed", zap.String("op", name), zap.Duration("dur", dur), zap.Error(*errp))
			return
		}
		log.Debug("op", zap.String("op", name), zap.Duration("dur", dur))
	}
}
