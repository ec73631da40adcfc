package orchestrator

import (
	"github.com/samogod/mentorloop/pkg/types"
)

// PlateauThreshold is the mean improvement rate below which a full window
// counts as a plateau.
const PlateauThreshold = 0.01

type StopPolicy struct {
	AccuracyThreshold float64
	PlateauWindow     int
}

// Check is evaluated after every completed cycle. Target accuracy wins over
// plateau when both hold.
func (p StopPolicy) Check(metrics types.PerformanceMetrics, state *types.TrainingState) (types.StopReason, bool) {
	if metrics.Accuracy >= p.AccuracyThreshold {
		return types.StopReasonTargetReached, true
	}
	if state != nil && state.WindowFull() && state.WindowMean() < PlateauThreshold {
		return types.StopReasonPlateau, true
	}
	return types.StopReasonNone, false
}
