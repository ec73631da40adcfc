package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samogod/mentorloop/pkg/config"
	"github.com/samogod/mentorloop/pkg/types"

	es8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

var DebugLog func(string, ...interface{})

type Client struct {
	es    *es8.Client
	index string
}

func New(cfg *config.Elastic) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("elasticsearch URL is required")
	}
	index := cfg.Index
	if strings.TrimSpace(index) == "" {
		index = "mentorloop_cycles"
	}

	es, err := es8.NewClient(es8.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
	}
	res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch info returned %s", res.Status())
	}

	return &Client{es: es, index: index}, nil
}

// document is one indexed record; Kind separates cycle rows from the session
// summary in the same index.
type document struct {
	ID                 string    `json:"-"`
	Kind               string    `json:"kind"`
	SessionID          string    `json:"session_id"`
	Timestamp          time.Time `json:"@timestamp"`
	CycleNumber        *int      `json:"cycle_number,omitempty"`
	QuestionsProcessed int       `json:"questions_processed"`
	CorrectAnswers     int       `json:"correct_answers"`
	ImprovementsMade   int       `json:"improvements_made"`
	Degraded           int       `json:"degraded"`
	Accuracy           float64   `json:"accuracy"`
	ImprovementRate    float64   `json:"improvement_rate"`
	LearningEfficiency float64   `json:"learning_efficiency"`
	DurationMS         int64     `json:"duration_ms"`
	CyclesCompleted    int       `json:"cycles_completed,omitempty"`
	StopReason         string    `json:"stop_reason,omitempty"`
	Interrupted        bool      `json:"interrupted,omitempty"`
	BaselineAccuracy   *float64  `json:"baseline_accuracy,omitempty"`
	FinalAccuracy      *float64  `json:"final_accuracy,omitempty"`
	Improvement        *float64  `json:"improvement,omitempty"`
}

func documents(result *types.TrainingResult) []document {
	docs := make([]document, 0, len(result.LearningProgression)+1)

	var total types.CycleResult
	for _, c := range result.LearningProgression {
		n := c.CycleNumber
		docs = append(docs, document{
			ID:                 fmt.Sprintf("%s-cycle-%d", result.SessionID, n),
			Kind:               "cycle",
			SessionID:          result.SessionID,
			Timestamp:          c.StartedAt,
			CycleNumber:        &n,
			QuestionsProcessed: c.QuestionsProcessed,
			CorrectAnswers:     c.CorrectAnswers,
			ImprovementsMade:   c.ImprovementsMade,
			Degraded:           c.Degraded,
			Accuracy:           c.Metrics.Accuracy,
			ImprovementRate:    c.Metrics.ImprovementRate,
			LearningEfficiency: c.Metrics.LearningEfficiency,
			DurationMS:         c.Duration.Milliseconds(),
		})
		total.QuestionsProcessed += c.QuestionsProcessed
		total.CorrectAnswers += c.CorrectAnswers
		total.ImprovementsMade += c.ImprovementsMade
		total.Degraded += c.Degraded
	}

	metrics := total.Recompute()
	summary := document{
		ID:                 result.SessionID,
		Kind:               "session",
		SessionID:          result.SessionID,
		Timestamp:          result.StartedAt,
		QuestionsProcessed: total.QuestionsProcessed,
		CorrectAnswers:     total.CorrectAnswers,
		ImprovementsMade:   total.ImprovementsMade,
		Degraded:           total.Degraded,
		Accuracy:           metrics.Accuracy,
		ImprovementRate:    metrics.ImprovementRate,
		LearningEfficiency: metrics.LearningEfficiency,
		DurationMS:         result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		CyclesCompleted:    result.CyclesCompleted,
		StopReason:         string(result.StopReason),
		Interrupted:        result.Interrupted,
	}
	if result.Baseline != nil {
		summary.BaselineAccuracy = &result.Baseline.Accuracy
	}
	if result.Final != nil {
		summary.FinalAccuracy = &result.Final.Accuracy
		summary.Improvement = &result.Final.Improvement
	}
	return append(docs, summary)
}

// SaveTrainingSession bulk-indexes one document per cycle plus a session
// summary. Document IDs are stable so re-saving a session overwrites it.
func (c *Client) SaveTrainingSession(ctx context.Context, result *types.TrainingResult) error {
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     c.es,
		Index:      c.index,
		NumWorkers: 2,
	})
	if err != nil {
		return fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	var (
		mu       sync.Mutex
		failures []string
	)

	for _, doc := range documents(result) {
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document %s: %w", doc.ID, err)
		}

		item := esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: doc.ID,
			Body:       bytes.NewReader(body),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, resp esutil.BulkIndexerResponseItem, err error) {
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, fmt.Sprintf("%s: %v", item.DocumentID, err))
					return
				}
				failures = append(failures, fmt.Sprintf("%s: %s: %s", item.DocumentID, resp.Error.Type, resp.Error.Reason))
			},
		}
		if err := bi.Add(ctx, item); err != nil {
			return fmt.Errorf("bulk add failed: %w", err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("bulk indexer close failed: %w", err)
	}

	stats := bi.Stats()
	if DebugLog != nil {
		DebugLog("indexed %d documents into %s (%d failed)", stats.NumIndexed, c.index, stats.NumFailed)
	}

	if len(failures) > 0 {
		return fmt.Errorf("failed to index %d documents: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}
