package mlpredict

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Classifier is the probability contract shared by the ensemble members.
// PredictProba returns P(up) in [0,1].
type Classifier interface {
	Fit(X [][]float64, y []int) error
	PredictProba(x []float64) float64
}

// ErrNoTrainingData is returned by Fit on an empty training set.
var ErrNoTrainingData = errors.New("mlpredict: empty training set")

// ────────────────────────────────────────────────────────────
// Logistic regression
// ────────────────────────────────────────────────────────────

// LogisticRegression is an L2-regularized logistic model trained by batch
// gradient descent on standardized features.
type LogisticRegression struct {
	epochs int
	lr     float64
	l2     float64

	weights []float64
	bias    float64
	means   []float64 // standardization, frozen at fit time
	stds    []float64
}

// NewLogisticRegression creates the model with fixed training hyperparameters.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{epochs: 300, lr: 0.1, l2: 1e-3}
}

func (m *LogisticRegression) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return ErrNoTrainingData
	}
	if len(X) != len(y) {
		return fmt.Errorf("mlpredict: %d rows vs %d labels", len(X), len(y))
	}
	dim := len(X[0])
	m.means, m.stds = standardization(X, dim)
	m.weights = make([]float64, dim)
	m.bias = 0

	n := float64(len(X))
	grad := make([]float64, dim)
	for epoch := 0; epoch < m.epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		var gradB float64
		for i, row := range X {
			p := m.proba(row)
			err := p - float64(y[i])
			for j := range grad {
				grad[j] += err * m.standardize(row[j], j)
			}
			gradB += err
		}
		for j := range m.weights {
			m.weights[j] -= m.lr * (grad[j]/n + m.l2*m.weights[j])
		}
		m.bias -= m.lr * gradB / n
	}
	return nil
}

func (m *LogisticRegression) PredictProba(x []float64) float64 {
	if m.weights == nil {
		return 0.5
	}
	return m.proba(x)
}

func (m *LogisticRegression) proba(x []float64) float64 {
	z := m.bias
	for j, v := range x {
		z += m.weights[j] * m.standardize(v, j)
	}
	return sigmoid(z)
}

func (m *LogisticRegression) standardize(v float64, j int) float64 {
	return (v - m.means[j]) / m.stds[j]
}

func standardization(X [][]float64, dim int) (means, stds []float64) {
	means = make([]float64, dim)
	stds = make([]float64, dim)
	n := float64(len(X))
	for _, row := range X {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}
	for _, row := range X {
		for j, v := range row {
			d := v - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
		if stds[j] < 1e-12 {
			stds[j] = 1 // constant feature, avoid division by zero
		}
	}
	return means, stds
}

// ────────────────────────────────────────────────────────────
// Boosted decision stumps
// ────────────────────────────────────────────────────────────

// stump is one axis-aligned threshold rule: sign * (x[feature] > threshold).
type stump struct {
	feature   int
	threshold float64
	polarity  float64 // +1: above threshold votes up; -1: below votes up
	alpha     float64 // boosting weight
}

// BoostedStumps is an AdaBoost ensemble of decision stumps. Each round
// fits the best single-feature threshold on the reweighted sample; the
// signed margin maps to a probability through a sigmoid.
type BoostedStumps struct {
	rounds     int
	candidates int // thresholds evaluated per feature per round

	stumps []stump
}

// NewBoostedStumps creates the ensemble with fixed training hyperparameters.
func NewBoostedStumps() *BoostedStumps {
	return &BoostedStumps{rounds: 40, candidates: 12}
}

func (m *BoostedStumps) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return ErrNoTrainingData
	}
	if len(X) != len(y) {
		return fmt.Errorf("mlpredict: %d rows vs %d labels", len(X), len(y))
	}
	n := len(X)
	dim := len(X[0])

	// Signed labels and uniform sample weights.
	ys := make([]float64, n)
	for i, label := range y {
		ys[i] = 2*float64(label) - 1
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}

	thresholds := candidateThresholds(X, dim, m.candidates)
	m.stumps = m.stumps[:0]

	for round := 0; round < m.rounds; round++ {
		best, bestErr := stump{}, math.Inf(1)
		for f := 0; f < dim; f++ {
			for _, th := range thresholds[f] {
				for _, pol := range []float64{1, -1} {
					var werr float64
					for i, row := range X {
						if stumpVote(row[f], th, pol) != ys[i] {
							werr += w[i]
						}
					}
					if werr < bestErr {
						bestErr = werr
						best = stump{feature: f, threshold: th, polarity: pol}
					}
				}
			}
		}
		if bestErr >= 0.5 {
			break // no stump beats chance on the reweighted sample
		}
		if bestErr < 1e-10 {
			bestErr = 1e-10
		}
		best.alpha = 0.5 * math.Log((1-bestErr)/bestErr)
		m.stumps = append(m.stumps, best)

		// Reweight: mistakes gain weight, renormalize.
		var total float64
		for i, row := range X {
			w[i] *= math.Exp(-best.alpha * ys[i] * stumpVote(row[best.feature], best.threshold, best.polarity))
			total += w[i]
		}
		for i := range w {
			w[i] /= total
		}
	}
	if len(m.stumps) == 0 {
		return errors.New("mlpredict: boosting found no informative stump")
	}
	return nil
}

func (m *BoostedStumps) PredictProba(x []float64) float64 {
	if len(m.stumps) == 0 {
		return 0.5
	}
	var margin, total float64
	for _, s := range m.stumps {
		margin += s.alpha * stumpVote(x[s.feature], s.threshold, s.polarity)
		total += s.alpha
	}
	if total == 0 {
		return 0.5
	}
	// Normalized margin in [-1,1] through a sigmoid; 2x sharpens the map
	// so a unanimous ensemble approaches 0.9 rather than 0.7.
	return sigmoid(2 * margin / total)
}

func stumpVote(v, threshold, polarity float64) float64 {
	if v > threshold {
		return polarity
	}
	return -polarity
}

// candidateThresholds picks evenly spaced order statistics per feature.
func candidateThresholds(X [][]float64, dim, count int) [][]float64 {
	out := make([][]float64, dim)
	vals := make([]float64, len(X))
	for f := 0; f < dim; f++ {
		for i, row := range X {
			vals[i] = row[f]
		}
		sort.Float64s(vals)
		ths := make([]float64, 0, count)
		for k := 1; k <= count; k++ {
			idx := k * len(vals) / (count + 1)
			if idx >= len(vals) {
				idx = len(vals) - 1
			}
			ths = append(ths, vals[idx])
		}
		out[f] = dedupFloats(ths)
	}
	return out
}

func dedupFloats(sorted []float64) []float64 {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
