package api

// Route constants for the API endpoints
const (
	// Health endpoints
	PingEndpoint = "/ping" // Health check endpoint

	// Admission endpoints
	VerifyEndpoint = "/verify" // POST: check a credential without consuming it
	VoteEndpoint   = "/vote"   // POST: cast an encrypted ballot

	// Public parameters
	PublicKeyEndpoint       = "/public-key"        // GET: raw ElGamal public key
	PublicKeyParamsEndpoint = "/public-key/params" // GET: raw groth16 verifying key

	// Epoch endpoints
	InfoEndpoint       = "/info"        // GET: epoch information
	TallyEndpoint      = "/tally"       // GET: encrypted tallies
	CloseEpochEndpoint = "/epoch/close" // POST: close voting (admin)

	MetricsEndpoint = "/metrics" // GET: Prometheus metrics
)

// LogExcludedPrefixes defines URL prefixes to exclude from request logging
var LogExcludedPrefixes = []string{
	PingEndpoint,
	PublicKeyEndpoint,
	MetricsEndpoint,
}
