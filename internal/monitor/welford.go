package monitor

import (
	"math"

	"github.com/rewired-gh/venuewatch/internal/models"
)

// UpdateWelford folds one closed-order duration (seconds) into the running statistics.
func UpdateWelford(state *models.VenueState, duration float64) {
	state.WelfordCount++
	delta := duration - state.WelfordMean
	state.WelfordMean += delta / float64(state.WelfordCount)
	delta2 := duration - state.WelfordMean
	state.WelfordM2 += delta * delta2
}

func GetMean(state *models.VenueState) float64 {
	if state.WelfordCount == 0 {
		return 0
	}
	return state.WelfordMean
}

// GetSigma returns the sample standard deviation, zero below two samples.
func GetSigma(state *models.VenueState) float64 {
	if state.WelfordCount < 2 {
		return 0
	}
	variance := state.WelfordM2 / float64(state.WelfordCount-1)
	return math.Sqrt(math.Max(variance, 0))
}
