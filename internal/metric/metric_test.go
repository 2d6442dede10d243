package metric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTagAsString(t *testing.T) {
	assert.Equal(t, "stage:resample", TagAsString(TagStage, "resample"))
}

func TestDisabledClientIsSafe(t *testing.T) {
	assert.NoError(t, Init("", "image-classifier", "test", 1))
	assert.NotPanics(t, func() {
		Timing(StageLatency, time.Millisecond, []string{TagAsString(TagStage, "run")})
		TimingWithStart(ClassifyLatency, time.Now(), nil)
		Count(ClassifyCount, 1, nil)
		Close()
	})
}
