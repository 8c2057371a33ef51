package producer

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
)

// partitionBuckets spreads keys over enough hash ranges that no single shard
// becomes hot even at peak rates.
const partitionBuckets = 1000

// partitionKey derives the stream partition key for a user. The user id alone
// would skew shard load towards chatty users, so a stable hash bucket is
// appended to spread each user's records across the key space.
func partitionKey(userId string) string {
	sum := md5.Sum([]byte(userId))
	bucket := binary.BigEndian.Uint32(sum[:4]) % partitionBuckets
	return fmt.Sprintf("%s#%04d", userId, bucket)
}
