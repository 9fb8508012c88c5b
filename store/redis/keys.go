package redis

// Redis key naming conventions for voteflow data.
// All keys are prefixed with "voteflow:" to avoid collisions.

const keyPrefix = "voteflow:"

// ── Job keys ──

// jobKey returns the key for a job entity: voteflow:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// queueKey returns the Sorted Set key for a queue: voteflow:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// activeKeysKey maps dedup keys to the active job holding them.
const activeKeysKey = keyPrefix + "active_keys"

// latestKeyKey maps a dedup key to the most recently enqueued job under it.
func latestKeyKey(key string) string { return keyPrefix + "key:" + key }

// ── Failure log keys ──

// failureKey returns the key for a failure entry: voteflow:failure:{id}
func failureKey(id string) string { return keyPrefix + "failure:" + id }

// failureIndexKey is the Sorted Set of failure IDs scored by failed_at.
const failureIndexKey = keyPrefix + "failures"

// ── Flag keys ──

// flagKey returns the key for an idempotency flag:
// voteflow:flag:{pollID}:{kind}:{participantID}
func flagKey(pollID, kind, participantID string) string {
	return keyPrefix + "flag:" + pollID + ":" + kind + ":" + participantID
}
