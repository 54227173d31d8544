// Package mlpredict provides the directional classifier ensemble: feature
// extraction from candle history, two independently trained classifiers
// behind a shared probability contract, and a predictor that degrades to
// neutral when untrained or stale.
package mlpredict

import "math"

// Bar is one closed candle with its RSI, the raw input to feature
// extraction. Bars are oldest-first.
type Bar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	RSI    float64
}

// Feature layout. Every feature is scale-free (ratios and percent changes)
// so one model serves pairs at any price level.
var (
	lagSteps    = []int{1, 2, 3, 5, 10}
	meanWindows = []int{5, 10, 20}
)

const (
	volatilityWindow = 20
	// forwardHorizon is the label lookahead: target = close[i+H] > close[i].
	forwardHorizon = 5
)

// minHistory is the first index with a complete feature row: the deepest
// lag plus the widest rolling window.
func minHistory() int {
	deepest := lagSteps[len(lagSteps)-1]
	widest := meanWindows[len(meanWindows)-1]
	if volatilityWindow > widest {
		widest = volatilityWindow
	}
	return deepest + widest
}

// featureDim is the row width: close/volume pct over each lag, RSI at each
// lag, close/volume vs each rolling mean, return volatility, bar shape.
func featureDim() int {
	return 2*len(lagSteps) + len(lagSteps) + 2*len(meanWindows) + 1 + 2
}

// featuresAt extracts the feature row for bar i, or false when the lag and
// window history before i is incomplete.
func featuresAt(bars []Bar, i int) ([]float64, bool) {
	if i < minHistory() || i >= len(bars) {
		return nil, false
	}
	cur := bars[i]
	if cur.Close == 0 || cur.Open == 0 || cur.Low == 0 {
		return nil, false
	}

	x := make([]float64, 0, featureDim())

	// Percent change of close and volume over each lag.
	for _, lag := range lagSteps {
		prev := bars[i-lag]
		x = append(x, pctChange(cur.Close, prev.Close))
		x = append(x, pctChange(cur.Volume, prev.Volume))
	}
	// Lagged RSI, rescaled to [-1,1] around the neutral 50.
	for _, lag := range lagSteps {
		x = append(x, (bars[i-lag].RSI-50)/50)
	}
	// Close and volume relative to their rolling means.
	for _, w := range meanWindows {
		mc, mv := rollingMeans(bars, i, w)
		x = append(x, ratioMinusOne(cur.Close, mc))
		x = append(x, ratioMinusOne(cur.Volume, mv))
	}
	// Return volatility over the window.
	x = append(x, returnStd(bars, i, volatilityWindow))
	// Bar shape: range and body.
	x = append(x, cur.High/cur.Low-1)
	x = append(x, cur.Close/cur.Open-1)

	return x, true
}

// trainingSet builds the feature matrix and forward labels. The last
// forwardHorizon bars have no label yet and are excluded, so the target
// never leaks future bars into training.
func trainingSet(bars []Bar) (X [][]float64, y []int) {
	for i := minHistory(); i < len(bars)-forwardHorizon; i++ {
		x, ok := featuresAt(bars, i)
		if !ok {
			continue
		}
		label := 0
		if bars[i+forwardHorizon].Close > bars[i].Close {
			label = 1
		}
		X = append(X, x)
		y = append(y, label)
	}
	return X, y
}

func pctChange(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return cur/prev - 1
}

func ratioMinusOne(v, base float64) float64 {
	if base == 0 {
		return 0
	}
	return v/base - 1
}

func rollingMeans(bars []Bar, i, window int) (closeMean, volumeMean float64) {
	for j := i - window + 1; j <= i; j++ {
		closeMean += bars[j].Close
		volumeMean += bars[j].Volume
	}
	n := float64(window)
	return closeMean / n, volumeMean / n
}

// returnStd is the sample standard deviation of 1-bar returns over the
// window ending at i.
func returnStd(bars []Bar, i, window int) float64 {
	rets := make([]float64, 0, window)
	for j := i - window + 1; j <= i; j++ {
		rets = append(rets, pctChange(bars[j].Close, bars[j-1].Close))
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var sq float64
	for _, r := range rets {
		d := r - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(rets)-1))
}
