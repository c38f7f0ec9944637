// Package seed generates synthetic listings and engagement events, loads them
// into the engine's database and checks a running server ranks them the way a
// local recomputation does.
package seed

import "time"

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL          string        // Base URL of the service
	DatabasePath     string        // SQLite file the service reads
	Items            int           // Number of listings to generate
	Events           int           // Number of engagement events to generate
	Span             time.Duration // Events are spread over [now-Span, now]
	Limit            int           // Ranking size requested per lens
	Workers          int           // Number of concurrent HTTP workers
	Timeout          time.Duration // HTTP request timeout
	RecalculateToken string        // Sent as X-Recalculate-Token when set
	Seed             uint64        // Random seed; zero picks one from the clock
	OutputFile       string        // Optional JSON dump of the generated dataset
	Verbose          bool          // Enable verbose logging
}

// Stats holds run statistics.
type Stats struct {
	ListingsGenerated int
	EventsGenerated   int
	ItemsRecalculated int
	RankingsRetrieved int
	RankingsFailed    int
	ItemsVerified     int
	Mismatches        int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
