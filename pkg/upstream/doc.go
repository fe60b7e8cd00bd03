// Package upstream issues requests to the upstream text-generation service
// and validates the response shape before committing to streaming relay.
//
// The forwarder uses a two-phase protocol. It first prebuffers a small,
// capped prefix of the response and checks that it looks like an event
// stream. Only then does it hand back a Stream that replays the prebuffered
// bytes and continues reading from the network. Responses that never validate
// within the cap are rejected with summary-only diagnostics, so a failure
// storm cannot amplify allocation through the error path.
package upstream
