package models

import "time"

// UploadedFile is a row in the uploaded_files table, one per origin object.
type UploadedFile struct {
	ID               string     `json:"id"`
	Filename         string     `json:"filename"`
	OriginalFilename string     `json:"original_filename"`
	Bucket           string     `json:"bucket"`
	Path             string     `json:"path"`
	Size             int64      `json:"size"`
	MimeType         string     `json:"mime_type"`
	FileType         string     `json:"type"` // "image" or "video"
	CDNURL           string     `json:"cdn_url"`
	DownloadCount    int64      `json:"download_count"`
	BandwidthUsed    int64      `json:"bandwidth_used"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastAccessed     *time.Time `json:"last_accessed,omitempty"`
}

// CacheEntry mirrors the live per-path counters kept in Redis.
type CacheEntry struct {
	Path        string     `json:"path"`
	CacheKey    string     `json:"cache_key"`
	HitCount    int64      `json:"hit_count"`
	MissCount   int64      `json:"miss_count"`
	BytesServed int64      `json:"bytes_served"`
	IsCached    bool       `json:"cached"`
	CacheSize   int64      `json:"cache_size,omitempty"`
	FirstCached *time.Time `json:"first_cached,omitempty"`
	LastHit     *time.Time `json:"last_hit,omitempty"`
	LastMiss    *time.Time `json:"last_miss,omitempty"`
}

// PurgeLog records one cache purge operation.
type PurgeLog struct {
	ID          string     `json:"id"`
	PurgeType   string     `json:"type"` // "single", "bucket", "full"
	Target      string     `json:"target"`
	FilesPurged int        `json:"files_purged"`
	BytesFreed  int64      `json:"bytes_freed"`
	TriggeredBy string     `json:"triggered_by"`
	Reason      string     `json:"reason,omitempty"`
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// BandwidthLog is one hourly traffic aggregate.
type BandwidthLog struct {
	Hour        time.Time `json:"hour"`
	Requests    int64     `json:"requests"`
	BytesSent   int64     `json:"bytes_sent"`
	CacheHits   int64     `json:"cache_hits"`
	CacheMisses int64     `json:"cache_misses"`
	Status200   int64     `json:"status_200"`
	Status206   int64     `json:"status_206"`
	Status304   int64     `json:"status_304"`
	Status404   int64     `json:"status_404"`
	Status5xx   int64     `json:"status_5xx"`
}

// AccessEvent is one raw edge access record as ingested from the tracking
// endpoints. Events land in MongoDB and are rolled up into BandwidthLog rows.
type AccessEvent struct {
	Path        string    `bson:"path" json:"path"`
	Status      int       `bson:"status" json:"status"`
	BytesSent   int64     `bson:"bytes_sent" json:"bytes_sent"`
	CacheStatus string    `bson:"cache_status" json:"cache_status"` // "HIT", "MISS", ...
	Timestamp   time.Time `bson:"ts" json:"ts"`
}
