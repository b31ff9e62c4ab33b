package am

import "github.com/teranos/topclients/errors"

// Validate checks that the configuration is valid.
// Zero means zero: top_n = 0 reports nothing, schedule_interval_seconds = 0
// disables the schedule, max_requests_per_second = 0 disables limiting.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.NewInvalidRequestError("database.path cannot be empty")
	}

	if c.Pipeline.TopN < 0 {
		return errors.NewInvalidRequestError("pipeline.top_n must be >= 0, got %d", c.Pipeline.TopN)
	}
	if c.Pipeline.Workers <= 0 {
		return errors.NewInvalidRequestError("pipeline.workers must be > 0, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.Reducers <= 0 {
		return errors.NewInvalidRequestError("pipeline.reducers must be > 0, got %d", c.Pipeline.Reducers)
	}
	if c.Pipeline.WindowMinutes <= 0 {
		return errors.NewInvalidRequestError("pipeline.window_minutes must be > 0, got %d", c.Pipeline.WindowMinutes)
	}
	if c.Pipeline.PartitionSize <= 0 {
		return errors.NewInvalidRequestError("pipeline.partition_size must be > 0, got %d", c.Pipeline.PartitionSize)
	}

	if c.Ingest.BatchSize <= 0 {
		return errors.NewInvalidRequestError("ingest.batch_size must be > 0, got %d", c.Ingest.BatchSize)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewInvalidRequestError("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Server.MaxRequestsPerSecond < 0 {
		return errors.NewInvalidRequestError("server.max_requests_per_second must be >= 0, got %g", c.Server.MaxRequestsPerSecond)
	}

	if c.Pulse.Workers < 0 {
		return errors.NewInvalidRequestError("pulse.workers must be >= 0, got %d", c.Pulse.Workers)
	}
	if c.Pulse.PollIntervalMS <= 0 {
		return errors.NewInvalidRequestError("pulse.poll_interval_ms must be > 0, got %d", c.Pulse.PollIntervalMS)
	}
	if c.Pulse.ScheduleIntervalSeconds < 0 {
		return errors.NewInvalidRequestError("pulse.schedule_interval_seconds must be >= 0, got %d", c.Pulse.ScheduleIntervalSeconds)
	}
	if c.Pulse.MaxRetries < 0 {
		return errors.NewInvalidRequestError("pulse.max_retries must be >= 0, got %d", c.Pulse.MaxRetries)
	}

	return nil
}
