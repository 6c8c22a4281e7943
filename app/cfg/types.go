package cfg

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	FeedsDir          string
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Ingestion policy
	Encoding       string   // empty means use the encoding detected per document
	RejectedImages []string // appended to the built-in image blocklist
	FetchRate      float64  // requests per second, 0 means unlimited
	FeedCacheTTL   int      // seconds

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
