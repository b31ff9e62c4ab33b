package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "topclients.db")

	v.SetDefault("pipeline.top_n", 10)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.reducers", 1)
	v.SetDefault("pipeline.window_minutes", 60)
	v.SetDefault("pipeline.partition_size", 10000)
	v.SetDefault("pipeline.combiner", true)
	v.SetDefault("pipeline.result_key", "topN.clientIPs")

	v.SetDefault("ingest.batch_size", 500)

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.max_requests_per_second", 50.0)

	v.SetDefault("pulse.workers", 1)
	v.SetDefault("pulse.poll_interval_ms", 500)
	v.SetDefault("pulse.schedule_interval_seconds", 3600)
	v.SetDefault("pulse.max_retries", 2)

	v.SetDefault("log.json", false)
}
