// Package moderation evaluates streamed text against per-profile trained
// classifiers and records the outcomes.
//
// Evaluation never blocks the streaming path: a profile without a resident
// model yields a neutral decision while the model loads in the background,
// and recording happens on a bounded asynchronous queue that sheds load
// rather than stalling callers.
package moderation
