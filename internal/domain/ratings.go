package domain

// Rating is a 1–5 self-assessment value.
type Rating int

const (
	MinRating Rating = 1
	MaxRating Rating = 5
)

// Valid reports whether r lies in [MinRating, MaxRating].
func (r Rating) Valid() bool {
	return r >= MinRating && r <= MaxRating
}

// Criterion names one of the seven reflection criteria.
type Criterion string

const (
	CriterionOpening            Criterion = "opening"
	CriterionStructure          Criterion = "structure"
	CriterionEnding             Criterion = "ending"
	CriterionConfidence         Criterion = "confidence"
	CriterionClarity            Criterion = "clarity"
	CriterionAuthenticity       Criterion = "authenticity"
	CriterionLanguageExpression Criterion = "languageExpression"
)

// Criteria lists every criterion in display order.
var Criteria = []Criterion{
	CriterionOpening,
	CriterionStructure,
	CriterionEnding,
	CriterionConfidence,
	CriterionClarity,
	CriterionAuthenticity,
	CriterionLanguageExpression,
}

// Ratings is a completed set of seven criterion scores.
type Ratings struct {
	Opening            Rating `json:"opening"`
	Structure          Rating `json:"structure"`
	Ending             Rating `json:"ending"`
	Confidence         Rating `json:"confidence"`
	Clarity            Rating `json:"clarity"`
	Authenticity       Rating `json:"authenticity"`
	LanguageExpression Rating `json:"languageExpression"`
}

// Values returns the ratings in Criteria order.
func (r Ratings) Values() []Rating {
	return []Rating{
		r.Opening,
		r.Structure,
		r.Ending,
		r.Confidence,
		r.Clarity,
		r.Authenticity,
		r.LanguageExpression,
	}
}

// RatingDraft holds ratings collected so far during reflection.
type RatingDraft map[Criterion]Rating

// Clone copies the draft.
func (d RatingDraft) Clone() RatingDraft {
	out := make(RatingDraft, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Complete converts the draft into Ratings when every criterion is present.
func (d RatingDraft) Complete() (Ratings, bool) {
	for _, c := range Criteria {
		if _, ok := d[c]; !ok {
			return Ratings{}, false
		}
	}
	return Ratings{
		Opening:            d[CriterionOpening],
		Structure:          d[CriterionStructure],
		Ending:             d[CriterionEnding],
		Confidence:         d[CriterionConfidence],
		Clarity:            d[CriterionClarity],
		Authenticity:       d[CriterionAuthenticity],
		LanguageExpression: d[CriterionLanguageExpression],
	}, true
}

// KnownCriterion reports whether c is one of the seven criteria.
func KnownCriterion(c Criterion) bool {
	for _, known := range Criteria {
		if known == c {
			return true
		}
	}
	return false
}
