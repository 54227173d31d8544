package mlpredict

import (
	"fmt"
	"log"
	"sync"
	"time"

	"fusion-systemv1/internal/model"
)

// Default predictor parameters.
const (
	// DefaultConfidenceThreshold is the minimum averaged probability for a
	// non-neutral direction.
	DefaultConfidenceThreshold = 0.6
	// DefaultRetrainInterval marks a model stale once its training data is
	// older than this.
	DefaultRetrainInterval = 24 * time.Hour
)

// Predictor averages the probabilities of an independently trained
// classifier ensemble and degrades to a flagged neutral result when
// untrained or stale. Safe for concurrent Predict while a Train runs on
// another goroutine.
type Predictor struct {
	mu sync.RWMutex

	classifiers []Classifier
	trainedAt   time.Time
	version     string
	trained     bool

	confidenceThreshold float64
	retrainInterval     time.Duration

	now func() time.Time
}

// New creates a predictor over the given ensemble. With no classifiers it
// defaults to logistic regression plus boosted stumps.
func New(classifiers ...Classifier) *Predictor {
	if len(classifiers) == 0 {
		classifiers = []Classifier{NewLogisticRegression(), NewBoostedStumps()}
	}
	return &Predictor{
		classifiers:         classifiers,
		confidenceThreshold: DefaultConfidenceThreshold,
		retrainInterval:     DefaultRetrainInterval,
		now:                 time.Now,
	}
}

// Train fits every ensemble member on the bar history. The last
// forwardHorizon bars carry no label and are excluded automatically.
func (p *Predictor) Train(bars []Bar) error {
	X, y := trainingSet(bars)
	if len(X) == 0 {
		return fmt.Errorf("mlpredict: %d bars yield no training rows (need > %d)",
			len(bars), minHistory()+forwardHorizon)
	}

	// Fitting holds the write lock: retraining happens once per interval
	// and concurrent Predict must not observe half-fitted members.
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, clf := range p.classifiers {
		if err := clf.Fit(X, y); err != nil {
			return fmt.Errorf("mlpredict: classifier %d: %w", i, err)
		}
	}

	p.trained = true
	p.trainedAt = p.now()
	p.version = p.trainedAt.UTC().Format("20060102T150405Z")

	log.Printf("[mlpredict] trained ensemble of %d on %d rows, version=%s",
		len(p.classifiers), len(X), p.version)
	return nil
}

// Version returns the current model version ("" when untrained).
func (p *Predictor) Version() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// Stale reports whether the model is untrained or past the retrain interval.
func (p *Predictor) Stale() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.staleLocked()
}

func (p *Predictor) staleLocked() bool {
	return !p.trained || p.now().Sub(p.trainedAt) > p.retrainInterval
}

// Predict scores the latest bar of the history. Untrained or stale models
// return the flagged neutral result; incomplete feature history returns
// neutral without the stale flag.
func (p *Predictor) Predict(bars []Bar) model.PredictionResult {
	p.mu.RLock()
	defer p.mu.RUnlock()

	res := model.PredictionResult{
		ModelVersion: p.version,
		ComputedAt:   p.now(),
	}
	if p.staleLocked() {
		res.Stale = true
		return res
	}

	x, ok := featuresAt(bars, len(bars)-1)
	if !ok {
		return res
	}

	var pUp float64
	for _, clf := range p.classifiers {
		pUp += clf.PredictProba(x)
	}
	pUp /= float64(len(p.classifiers))
	pDown := 1 - pUp

	switch {
	case pUp >= p.confidenceThreshold:
		res.Direction = 1
		res.Confidence = pUp
	case pDown >= p.confidenceThreshold:
		res.Direction = -1
		res.Confidence = pDown
	default:
		res.Direction = 0
		if pUp > pDown {
			res.Confidence = pUp
		} else {
			res.Confidence = pDown
		}
	}
	return res
}
