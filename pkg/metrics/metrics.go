package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/samogod/mentorloop/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var DebugLog func(string, ...interface{})

const namespace = "mentorloop"

// Recorder exposes training progress as Prometheus metrics. Each Recorder
// owns its registry so tests and repeated runs do not collide.
type Recorder struct {
	registry *prometheus.Registry

	accuracy           prometheus.Gauge
	improvementRate    prometheus.Gauge
	learningEfficiency prometheus.Gauge
	plateauWindowMean  prometheus.Gauge
	trainingActive     prometheus.Gauge
	currentCycle       prometheus.Gauge

	questions   *prometheus.CounterVec
	corrections *prometheus.CounterVec
	degraded    *prometheus.CounterVec
	cycles      prometheus.Counter
	cycleTime   prometheus.Histogram

	server *http.Server
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      name,
			Help:      help,
		})
	}

	return &Recorder{
		registry:           reg,
		accuracy:           gauge("accuracy", "Accuracy of the last completed cycle"),
		improvementRate:    gauge("improvement_rate", "Share of questions in the last cycle that led to an applied correction"),
		learningEfficiency: gauge("learning_efficiency", "Applied corrections per wrong answer in the last cycle"),
		plateauWindowMean:  gauge("plateau_window_mean", "Mean improvement rate over the plateau window"),
		trainingActive:     gauge("active", "1 while a training session is running"),
		currentCycle:       gauge("current_cycle", "Number of cycles completed in the current session"),
		questions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "questions_total",
			Help:      "Questions processed, by result",
		}, []string{"result"}),
		corrections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "corrections_total",
			Help:      "Correction attempts, by whether the student applied them",
		}, []string{"applied"}),
		degraded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "degraded_total",
			Help:      "Collaborator failures replaced by a fallback, by stage",
		}, []string{"stage"}),
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "cycles_total",
			Help:      "Completed training cycles",
		}),
		cycleTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a training cycle",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
}

func (r *Recorder) ObserveQuestion(correct bool) {
	result := "wrong"
	if correct {
		result = "correct"
	}
	r.questions.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveCorrection(applied bool) {
	r.corrections.WithLabelValues(strconv.FormatBool(applied)).Inc()
}

func (r *Recorder) ObserveDegraded(stage string) {
	r.degraded.WithLabelValues(stage).Inc()
}

func (r *Recorder) ObserveCycle(cycle types.CycleResult, windowMean float64) {
	r.cycles.Inc()
	r.currentCycle.Set(float64(cycle.CycleNumber + 1))
	r.accuracy.Set(cycle.Metrics.Accuracy)
	r.improvementRate.Set(cycle.Metrics.ImprovementRate)
	r.learningEfficiency.Set(cycle.Metrics.LearningEfficiency)
	r.plateauWindowMean.Set(windowMean)
	r.cycleTime.Observe(cycle.Duration.Seconds())
}

func (r *Recorder) SetActive(active bool) {
	if active {
		r.trainingActive.Set(1)
		return
	}
	r.trainingActive.Set(0)
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve starts the /metrics listener in the background and returns the
// address it bound to.
func (r *Recorder) Serve(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	r.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := r.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if DebugLog != nil {
				DebugLog("metrics listener stopped: %v", err)
			}
		}
	}()

	if DebugLog != nil {
		DebugLog("serving metrics on %s", ln.Addr())
	}
	return ln.Addr().String(), nil
}

func (r *Recorder) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
