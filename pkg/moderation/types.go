package moderation

// Verdict is the outcome of evaluating one unit of text.
type Verdict string

const (
	VerdictPass      Verdict = "pass"
	VerdictViolation Verdict = "violation"
)

// Decision is the result of one evaluation.
type Decision struct {
	// Verdict is the binding outcome used by the streaming path.
	Verdict Verdict

	// Score is the classifier's violation probability, 0 when no model
	// was resident.
	Score float64

	// ModelAbsent marks a neutral decision taken without a classifier.
	ModelAbsent bool

	// Uncertain marks a score inside the middle band where the classifier
	// is not confident either way.
	Uncertain bool

	// Sampled marks decisions selected for review and recorded as future
	// training material.
	Sampled bool
}
