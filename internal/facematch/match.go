package facematch

import (
	"math"

	"github.com/kozaktomas/companion/internal/constants"
	"github.com/kozaktomas/companion/internal/database"
	"go.uber.org/zap"
)

// Match finds the known person closest to the probe embedding.
//
// A person is a candidate when the Euclidean distance is below
// constants.MatchDistanceThreshold. The candidate with the strictly smallest
// distance wins; on equal distance the entry that comes first in registry
// wins. People without an embedding never match. A malformed stored embedding
// is logged and skipped without aborting the search.
func Match(probe []float32, registry []database.KnownPerson, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(registry) == 0 {
		return Result{}
	}
	if err := ValidateEmbedding(probe); err != nil {
		logger.Debug("probe embedding rejected", zap.Error(err))
		return Result{}
	}

	best := -1
	bestDistance := math.Inf(1)

	for i := range registry {
		person := &registry[i]
		if !person.HasEmbedding() {
			continue
		}
		if len(person.Embedding) != len(probe) {
			logger.Warn("skipping person with mismatched embedding length",
				zap.String("person_id", person.ID),
				zap.Int("stored_len", len(person.Embedding)),
				zap.Int("probe_len", len(probe)))
			continue
		}
		if err := ValidateEmbedding(person.Embedding); err != nil {
			logger.Warn("skipping person with malformed embedding",
				zap.String("person_id", person.ID), zap.Error(err))
			continue
		}

		d := database.EuclideanDistance(probe, person.Embedding)
		if d < constants.MatchDistanceThreshold && d < bestDistance {
			best = i
			bestDistance = d
		}
	}

	if best < 0 {
		return Result{}
	}

	person := registry[best]
	return Result{
		IsKnown:    true,
		PersonID:   person.ID,
		Name:       person.Name,
		Confidence: Confidence(bestDistance),
		Distance:   bestDistance,
	}
}

// Confidence converts a match distance to a 0-100 score.
func Confidence(distance float64) int {
	c := int(math.Round((1 - distance) * 100))
	return max(0, min(100, c))
}
