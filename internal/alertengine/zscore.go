package alertengine

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

const profitHistoryCap = 50

// profitHistory tracks a bounded, per-wallet ring of recent profit observations used
// to compute a z-score for each new observation (spec §4.5 step 8).
type profitHistory struct {
	mu      sync.Mutex
	byWallet map[string][]float64
}

func newProfitHistory() *profitHistory {
	return &profitHistory{byWallet: make(map[string][]float64)}
}

// Observe computes the z-score of profit against wallet's prior history (population
// stdev, zero when fewer than two prior values exist or stdev is zero), then appends
// profit to the history, evicting the oldest entry past the cap.
func (h *profitHistory) Observe(wallet string, profit float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	history := h.byWallet[wallet]

	var z float64
	if len(history) >= 2 {
		mean := stat.Mean(history, nil)
		std := populationStdDev(history, mean)
		if std != 0 {
			z = (profit - mean) / std
		}
	}

	history = append(history, profit)
	if len(history) > profitHistoryCap {
		history = history[len(history)-profitHistoryCap:]
	}
	h.byWallet[wallet] = history

	return z
}

func populationStdDev(data []float64, mean float64) float64 {
	var sumSq float64
	for _, v := range data {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(data)))
}
