package scoring

import (
	"math"

	"impromptu/internal/domain"
)

// ConvertRatingToTenScale maps a 1–5 rating onto 0–10.
func ConvertRatingToTenScale(r domain.Rating) float64 {
	return float64(r) / 5 * 10
}

// CalculateOverallScore averages the converted ratings, rounded to one decimal.
func CalculateOverallScore(r domain.Ratings) float64 {
	values := r.Values()
	sum := 0.0
	for _, v := range values {
		sum += ConvertRatingToTenScale(v)
	}
	average := sum / float64(len(values))
	return math.Round(average*10) / 10
}

// HasAllRatings reports whether every criterion has been rated.
func HasAllRatings(d domain.RatingDraft) bool {
	_, ok := d.Complete()
	return ok
}
