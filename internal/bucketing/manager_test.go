package bucketing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"marketplace-auth/internal/config"
)

func TestEventBucketIsStableAndBounded(t *testing.T) {
	bm := NewBucketingManager(&config.Config{Bucketing: config.BucketingConfig{EventBuckets: 16}})

	first := bm.GetEventBucket("+919876543210")
	for range 100 {
		assert.Equal(t, first, bm.GetEventBucket("+919876543210"))
	}
	for _, id := range []string{"a@x.com", "b@x.com", "token", ""} {
		b := bm.GetEventBucket(id)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 16)
	}
}

func TestDateBucketUsesUTC(t *testing.T) {
	bm := NewBucketingManager(&config.Config{})
	ist := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2026, 3, 2, 2, 0, 0, 0, ist)

	assert.Equal(t, "2026-03-01", bm.GetDateBucket(at))
	assert.Equal(t, 0, bm.Assign("x", at).EventBucket)
}
