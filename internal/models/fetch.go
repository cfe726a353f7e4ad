package models

// FetchResult is the outcome of one rate-limited fetch call. Keys with
// no upstream record are simply absent from Records — absence is a
// valid state, not an error. FailedKeys lists keys whose lookups
// exhausted their retries; they are treated as absent downstream.
type FetchResult struct {
	Records    map[string]*RevenueRecord
	FailedKeys []string
	Requests   int
	Retries    int
	CacheHits  int
	// Incomplete is set when the call's context expired before every
	// key was attempted; Records still holds everything fetched so far.
	Incomplete bool
}
