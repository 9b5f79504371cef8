package domain

// FinalNote is the lawyer's written summary of a consultation.
type FinalNote struct {
	Note string `json:"note"`
}

// Feedback is the user's rating of a consultation.
type Feedback struct {
	Feedback string `json:"feedback"`
	Rating   int    `json:"rating"`
}

const (
	MinRating = 1
	MaxRating = 5
)
