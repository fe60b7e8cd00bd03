package model

// Classifier is an opaque trained model handle. Implementations score a unit
// of text with a violation probability in [0, 1].
//
// Score must be safe for concurrent use: the moderation engine borrows a
// classifier from the cache for the duration of one evaluation while training
// may swap in a replacement.
type Classifier interface {
	Score(text string) float64
}

// TrainingSample is one labeled example fed to a trainer.
type TrainingSample struct {
	Text string

	// Violation marks the positive class.
	Violation bool
}
