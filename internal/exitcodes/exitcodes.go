package exitcodes

// Exit codes for folder-sanitizer
// These codes form the contract with scripts and service managers
const (
	Success         = 0 // Sweep completed without error events
	InvalidConfig   = 2 // Configuration file or flags invalid
	SafetyViolation = 3 // Every root was rejected by the safety validator
	RuntimeError    = 4 // Sweep or watch loop could not run
	PartialFailure  = 5 // Sweep completed but reported error events
)
