// Package am loads, validates and persists topclients configuration.
package am

// Config represents the topclients configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database"`
	Pipeline PipelineConfig `mapstructure:"pipeline" toml:"pipeline"`
	Ingest   IngestConfig   `mapstructure:"ingest" toml:"ingest"`
	Server   ServerConfig   `mapstructure:"server" toml:"server"`
	Pulse    PulseConfig    `mapstructure:"pulse" toml:"pulse"`
	Log      LogConfig      `mapstructure:"log" toml:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// PipelineConfig configures top-N runs
type PipelineConfig struct {
	TopN          int    `mapstructure:"top_n" toml:"top_n"`                   // clients reported per run; 0 reports none
	Workers       int    `mapstructure:"workers" toml:"workers"`               // partitions mapped concurrently
	Reducers      int    `mapstructure:"reducers" toml:"reducers"`             // reducer shards (1 = single reducer)
	WindowMinutes int    `mapstructure:"window_minutes" toml:"window_minutes"` // width of the analysed window
	PartitionSize int    `mapstructure:"partition_size" toml:"partition_size"` // stream rows per partition
	Combiner      bool   `mapstructure:"combiner" toml:"combiner"`             // pre-aggregate inside each partition
	ResultKey     string `mapstructure:"result_key" toml:"result_key"`
}

// IngestConfig configures log import
type IngestConfig struct {
	BatchSize int `mapstructure:"batch_size" toml:"batch_size"`
}

// ServerConfig configures the query endpoint
type ServerConfig struct {
	Port                 int     `mapstructure:"port" toml:"port"`
	MaxRequestsPerSecond float64 `mapstructure:"max_requests_per_second" toml:"max_requests_per_second"` // 0 disables limiting
}

// PulseConfig configures background jobs and the schedule
type PulseConfig struct {
	Workers                 int `mapstructure:"workers" toml:"workers"`
	PollIntervalMS          int `mapstructure:"poll_interval_ms" toml:"poll_interval_ms"`
	ScheduleIntervalSeconds int `mapstructure:"schedule_interval_seconds" toml:"schedule_interval_seconds"` // 0 disables the schedule
	MaxRetries              int `mapstructure:"max_retries" toml:"max_retries"`
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json"`
}

// Server port constants
const (
	DefaultServerPort = 8787
)

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
