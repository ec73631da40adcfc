package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samogod/mentorloop/pkg/config"
	"github.com/samogod/mentorloop/pkg/database"
	"github.com/samogod/mentorloop/pkg/elastic"
	"github.com/samogod/mentorloop/pkg/evaluator"
	"github.com/samogod/mentorloop/pkg/memory"
	"github.com/samogod/mentorloop/pkg/metrics"
	"github.com/samogod/mentorloop/pkg/results"
	"github.com/samogod/mentorloop/pkg/session"
	"github.com/samogod/mentorloop/pkg/student"
	"github.com/samogod/mentorloop/pkg/teacher"
	"github.com/samogod/mentorloop/pkg/types"

	"github.com/sirupsen/logrus"
)

var DebugLog func(string, ...interface{})

var ErrNotInitialized = errors.New("orchestrator not initialized")

const logFileName = "training.log"

type Orchestrator struct {
	config        *config.Config
	configManager *config.Manager
	logger        *logrus.Logger
	logFile       *os.File

	db       *database.DB
	memory   memory.Store
	recorder *metrics.Recorder
	teacher  *teacher.Teacher
	student  *student.Student
	eval     *evaluator.Evaluator
	sinks    *results.MultiSink

	controller *Controller

	mu           sync.Mutex
	initialized  bool
	finalizeOnce sync.Once
	finalizeErr  error

	// stopMu guards stopRequested; controller is written under both locks.
	stopMu        sync.Mutex
	stopRequested bool
}

type Status struct {
	ConfigPath  string              `json:"config_path"`
	ConfigOK    bool                `json:"config_loaded"`
	Initialized bool                `json:"initialized"`
	Phase       Phase               `json:"phase"`
	State       types.TrainingState `json:"training_state"`
	Components  map[string]bool     `json:"components"`
	Teacher     *teacher.Stats      `json:"teacher,omitempty"`
	Student     *student.Stats      `json:"student,omitempty"`
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var levelText string
	switch entry.Level {
	case logrus.InfoLevel:
		levelText = "[INF]"
	case logrus.WarnLevel:
		levelText = "[WARN]"
	case logrus.ErrorLevel:
		levelText = "[ERR]"
	case logrus.DebugLevel:
		levelText = "[DBG]"
	default:
		levelText = "[???]"
	}
	return []byte(fmt.Sprintf("%s %s %s\n", entry.Time.Format("15:04:05"), levelText, entry.Message)), nil
}

func NewOrchestrator(configPath string) (*Orchestrator, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if DebugLog != nil {
		logger.SetLevel(logrus.DebugLevel)
	}
	logger.SetFormatter(&customFormatter{})

	configManager := config.NewManager(configPath)
	if err := configManager.LoadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg := configManager.GetConfig()

	for _, dir := range []string{cfg.Data.OutputPath, cfg.Data.LogsPath, cfg.Student.CheckpointDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	o := &Orchestrator{
		config:        cfg,
		configManager: configManager,
		logger:        logger,
	}

	logPath := filepath.Join(cfg.Data.LogsPath, logFileName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		logger.Warnf("Could not open log file %s: %v", logPath, err)
	} else {
		o.logFile = logFile
		logger.SetOutput(io.MultiWriter(os.Stdout, logFile))
	}

	if DebugLog != nil {
		DebugLog("configuration loaded from %s", configManager.Path())
	}

	return o, nil
}

// Initialize builds and verifies every component. No training can run until
// it succeeds.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		return nil
	}

	cfg := o.config
	o.logger.Info("Initializing training system")

	store, err := memory.New(ctx, &cfg.Memory)
	if err != nil {
		return fmt.Errorf("failed to initialize memory store: %w", err)
	}
	o.memory = store

	provider, err := teacher.NewProvider(ctx, &cfg.Teacher)
	if err != nil {
		return fmt.Errorf("failed to initialize teacher: %w", err)
	}
	o.teacher = teacher.New(provider, &cfg.Teacher)
	if err := o.teacher.VerifyConnection(ctx); err != nil {
		return fmt.Errorf("teacher verification failed: %w", err)
	}
	o.logger.Infof("Teacher ready (%s, %s)", cfg.Teacher.Provider, cfg.Teacher.Model)

	o.student = student.New(student.NewBridge(cfg.Student.Command, cfg.Student.Args), o.memory, &cfg.Student)
	if cfg.Student.Download {
		sess := session.New(0)
		downloader := student.NewDownloader(sess.Client, cfg.Student.DownloadBaseURL, cfg.Student.ModelName,
			config.GetModelCacheDir(cfg.Student.ModelName))
		dir, err := downloader.DownloadModel(ctx, false)
		sess.Close()
		if err != nil {
			return fmt.Errorf("failed to download student model: %w", err)
		}
		o.student.UseLocalFiles(dir)
	}
	if err := o.student.VerifyModel(ctx); err != nil {
		return fmt.Errorf("student verification failed: %w", err)
	}
	o.logger.Infof("Student ready (%s)", cfg.Student.ModelName)

	o.eval = evaluator.New(o.teacher, o.student, o.teacher, cfg.Evaluation.EvalQuestions, cfg.Evaluation.Topic, o.logger)

	o.sinks = results.NewMultiSink(results.NewJSONSink(cfg.Data.OutputPath))

	db, err := database.New(ctx, &cfg.Database)
	if err != nil {
		o.logger.Warnf("Database initialization failed: %v", err)
	}
	o.db = db
	if db != nil && db.IsEnabled() {
		o.sinks.Add(db)
	}

	if cfg.Elastic.Enabled {
		es, err := elastic.New(&cfg.Elastic)
		if err != nil {
			o.logger.Warnf("Elasticsearch initialization failed: %v", err)
		} else {
			o.sinks.Add(es)
		}
	}

	o.recorder = metrics.NewRecorder()
	if cfg.Metrics.ListenAddr != "" {
		addr, err := o.recorder.Serve(cfg.Metrics.ListenAddr)
		if err != nil {
			o.logger.Warnf("Metrics listener failed: %v", err)
		} else {
			o.logger.Infof("Metrics available at http://%s/metrics", addr)
		}
	}

	executor := &CycleExecutor{
		Questions: o.teacher,
		Answerer:  o.student,
		Grader:    o.teacher,
		Corrector: o.student,
		Observer:  o.recorder,
		Logger:    o.logger,
	}
	controller := NewController(ControllerConfig{
		QuestionsPerCycle: cfg.Training.QuestionsPerCycle,
		MaxCycles:         cfg.Training.MaxCycles,
		Policy: StopPolicy{
			AccuracyThreshold: cfg.Training.MinAccuracyThreshold,
			PlateauWindow:     cfg.Training.MaxPlateauCycles,
		},
		PersistPartialResults: cfg.Training.PersistPartialResults,
	}, executor, o.eval, o.sinks, o.recorder, o.logger)

	o.attachController(controller)

	o.initialized = true
	o.logger.Info("Training system initialized")
	return nil
}

func (o *Orchestrator) RunFullTraining(ctx context.Context, maxCycles int) (*types.TrainingResult, error) {
	c, err := o.ready()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := c.Run(ctx, maxCycles)
	if err != nil {
		return result, err
	}

	o.logger.Infof("Training completed in %s", time.Since(start).Round(time.Second))
	return result, nil
}

func (o *Orchestrator) RunBaselineEvaluation(ctx context.Context) (*types.Snapshot, error) {
	if _, err := o.ready(); err != nil {
		return nil, err
	}
	return o.eval.RunBaselineEvaluation(ctx)
}

// Stop asks a running session to end after the current cycle. It does not
// wait for Initialize; a request made before the controller exists is
// handed to it once it is built.
func (o *Orchestrator) Stop() {
	o.stopMu.Lock()
	defer o.stopMu.Unlock()
	o.stopRequested = true
	if o.controller != nil {
		o.controller.Stop()
	}
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		ConfigPath:  o.configManager.Path(),
		ConfigOK:    o.config != nil,
		Initialized: o.initialized,
		Phase:       PhaseIdle,
		Components: map[string]bool{
			"teacher":   o.teacher != nil,
			"student":   o.student != nil,
			"evaluator": o.eval != nil,
			"memory":    o.memory != nil,
			"database":  o.db != nil && o.db.IsEnabled(),
			"metrics":   o.recorder != nil,
		},
	}

	if o.controller != nil {
		st.Phase = o.controller.Phase()
		st.State = o.controller.State()
	}
	if o.teacher != nil {
		ts := o.teacher.Stats()
		st.Teacher = &ts
	}
	if o.student != nil {
		ss := o.student.Stats()
		st.Student = &ss
	}
	return st
}

// Finalize saves the student, releases every component and clears the
// active flag. Only the first call does any work.
func (o *Orchestrator) Finalize(ctx context.Context) error {
	o.finalizeOnce.Do(func() {
		o.finalizeErr = o.finalize(ctx)
	})
	return o.finalizeErr
}

func (o *Orchestrator) finalize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs []error

	if o.controller != nil {
		o.controller.Stop()
	}

	if o.student != nil {
		path, err := o.student.SaveModel(ctx)
		if err != nil {
			errs = append(errs, err)
		} else if path != "" {
			o.logger.Infof("Student model saved to %s", path)
		}
		if err := o.student.Close(); err != nil {
			errs = append(errs, fmt.Errorf("student close: %w", err))
		}
	}

	if o.teacher != nil {
		if err := o.teacher.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("teacher cleanup: %w", err))
		}
	}

	if o.memory != nil {
		if err := o.memory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("memory close: %w", err))
		}
	}

	if o.db != nil {
		if err := o.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}

	if o.recorder != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := o.recorder.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
		cancel()
	}

	if o.initialized {
		o.logger.Info("Training system finalized")
	}
	o.initialized = false

	if o.logFile != nil {
		o.logger.SetOutput(os.Stdout)
		if err := o.logFile.Close(); err != nil {
			errs = append(errs, err)
		}
		o.logFile = nil
	}

	return errors.Join(errs...)
}

// attachController installs c and passes on a stop requested before it
// existed. Caller holds o.mu.
func (o *Orchestrator) attachController(c *Controller) {
	o.stopMu.Lock()
	defer o.stopMu.Unlock()
	o.controller = c
	if o.stopRequested {
		c.Stop()
	}
}

func (o *Orchestrator) ready() (*Controller, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.initialized || o.controller == nil {
		return nil, ErrNotInitialized
	}
	return o.controller, nil
}

func (o *Orchestrator) GetConfig() *config.Config {
	return o.config
}

func (o *Orchestrator) GetDB() *database.DB {
	return o.db
}

func (o *Orchestrator) Logger() *logrus.Logger {
	return o.logger
}
