package seed

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DefaultSpan      = 8 * 24 * time.Hour
	DefaultBatchSize = 500
	// ScoreTolerance absorbs float formatting through JSON.
	ScoreTolerance = 1e-6
)

// Dataset shape constants.
const (
	verifiedShare      = 0.3
	launchDateShare    = 0.5
	acceptedIntroShare = 0.3
	declinedIntroShare = 0.3
	maxListingAge      = 30 * 24 * time.Hour
)
