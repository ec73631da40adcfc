package types

// TrainingState is the controller's running tally. RecentImprovements is a
// sliding window of the last WindowSize improvement rates, oldest first.
type TrainingState struct {
	CurrentCycle            int       `json:"current_cycle"`
	TotalQuestionsProcessed int       `json:"total_questions_processed"`
	ImprovementsDetected    int       `json:"improvements_detected"`
	Active                  bool      `json:"training_active"`
	RecentImprovements      []float64 `json:"recent_improvements"`
	WindowSize              int       `json:"window_size"`
}

func NewTrainingState(windowSize int) *TrainingState {
	return &TrainingState{
		WindowSize:         windowSize,
		RecentImprovements: make([]float64, 0, max(windowSize, 0)),
	}
}

// Record folds a completed cycle into the cumulative counters and advances
// the cycle index.
func (s *TrainingState) Record(c CycleResult) {
	s.CurrentCycle++
	s.TotalQuestionsProcessed += c.QuestionsProcessed
	s.ImprovementsDetected += c.ImprovementsMade
	s.PushImprovement(c.Metrics.ImprovementRate)
}

func (s *TrainingState) PushImprovement(rate float64) {
	if s.WindowSize <= 0 {
		return
	}
	s.RecentImprovements = append(s.RecentImprovements, rate)
	if over := len(s.RecentImprovements) - s.WindowSize; over > 0 {
		s.RecentImprovements = append(s.RecentImprovements[:0], s.RecentImprovements[over:]...)
	}
}

func (s *TrainingState) WindowFull() bool {
	return s.WindowSize > 0 && len(s.RecentImprovements) >= s.WindowSize
}

func (s *TrainingState) WindowMean() float64 {
	return Mean(s.RecentImprovements)
}

// Clone returns a copy that shares no memory with s.
func (s *TrainingState) Clone() TrainingState {
	out := *s
	out.RecentImprovements = append([]float64(nil), s.RecentImprovements...)
	return out
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
