package config

import "time"

// localConfig is the developer default: a backend on localhost, readable logs
// and reports archived under the working directory.
func localConfig() Config {
	return Config{
		BackendURL:        "http://localhost:8000",
		Port:              ":8090",
		Env:               "local",
		Log:               LogConfig{Level: "debug", Format: "text"},
		HTTPTimeout:       15 * time.Second,
		StreamIdleTimeout: 60 * time.Second,
		FeedCapacity:      10,
		Simulation: SimulationConfig{
			CacheSize: 128,
			CacheTTL:  5 * time.Minute,
			Parallel:  4,
		},
		Archive: ArchiveConfig{
			Dir: ".meridian/reports",
			S3:  S3Config{Region: "us-east-1", Bucket: "meridian-reports"},
		},
	}
}
