// Warden is a moderating proxy for streaming AI APIs.
//
// It relays server-sent event streams from an upstream provider to clients
// while scoring each event against per-profile classifiers, redacting
// violations in place. Sampled traffic feeds a background training loop that
// retrains and hot-swaps the classifiers without interrupting service.
//
// Usage:
//
//	# Start the gateway with default configuration
//	warden run
//
//	# Start with a configuration file
//	warden run --config /etc/warden/config.yaml
//
//	# Override the listen address
//	warden run --listen 0.0.0.0:8080
//
//	# Query recent moderation decisions
//	warden log --profile default --limit 50
//
//	# Show version information
//	warden version
package main

func main() {
	Execute()
}
