package bucketing

import (
	"strings"

	"github.com/spaolacci/murmur3"
)

// DefaultBucketCount spreads accounts across Scylla partitions. Changing it
// invalidates existing partition placement, so it is fixed per deployment.
const DefaultBucketCount = 64

// BucketingManager maps account emails to stable partition buckets so a
// single hot partition never holds every account.
type BucketingManager struct {
	bucketCount uint32
}

func NewBucketingManager() *BucketingManager {
	return &BucketingManager{bucketCount: DefaultBucketCount}
}

// EmailBucket returns the partition bucket for an email. Hashing is over the
// exact stored form (emails are case-sensitive as stored).
func (m *BucketingManager) EmailBucket(email string) int {
	h := murmur3.Sum32([]byte(strings.TrimSpace(email)))
	return int(h % m.bucketCount)
}
