package domain

// SyncResult holds the outcome of syncing a single source.
type SyncResult struct {
	NewArticles int
	Updated     int
}

// BatchResult aggregates the outcome of syncing all sources for an owner.
type BatchResult struct {
	TotalSources int
	Successful   int
	Failed       int
	NewArticles  int
}

// Progress is reported after each attempted source during a batch sync.
type Progress struct {
	Index       int
	Total       int
	SourceTitle string
}
