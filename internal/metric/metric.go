package metric

import (
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
)

const (
	ClassifyLatency = "classify_latency"
	ClassifyCount   = "classify_count"
	StageLatency    = "classify_stage_latency"

	TagEnv     = "env"
	TagService = "service"
	TagStage   = "stage"
	TagStatus  = "status"
)

var (
	mu sync.RWMutex
	// it is safe to use one client from multiple goroutines simultaneously
	client       statsd.ClientInterface = &statsd.NoOpClient{}
	samplingRate                        = 1.0
)

// Init points the metrics client at a statsd agent. An empty address keeps
// the no-op client.
func Init(address, appName, env string, rate float64) error {
	if address == "" {
		log.Info().Msg("Metrics disabled, no statsd address configured")
		return nil
	}

	c, err := statsd.New(address, statsd.WithTags([]string{
		TagAsString(TagEnv, env),
		TagAsString(TagService, appName),
	}))
	if err != nil {
		return fmt.Errorf("statsd client initialization failed: %w", err)
	}

	mu.Lock()
	client = c
	if rate > 0 && rate <= 1 {
		samplingRate = rate
	}
	mu.Unlock()

	log.Info().Msgf("Metrics client initialized with address %s and sampling rate %f", address, rate)
	return nil
}

// Timing sends a duration.
func Timing(name string, value time.Duration, tags []string) {
	mu.RLock()
	defer mu.RUnlock()
	if err := client.Timing(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd timing")
	}
}

// TimingWithStart can be deferred at the top of a function.
func TimingWithStart(name string, start time.Time, tags []string) {
	Timing(name, time.Since(start), tags)
}

// Count increases a counter by value.
func Count(name string, value int64, tags []string) {
	mu.RLock()
	defer mu.RUnlock()
	if err := client.Count(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd count")
	}
}

func TagAsString(key, value string) string {
	return key + ":" + value
}

// Close flushes and stops the client.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if err := client.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing statsd client")
	}
	client = &statsd.NoOpClient{}
}
