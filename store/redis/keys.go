package redis

// Redis key naming for forq data. All keys are prefixed with "forq:".

const keyPrefix = "forq:"

// jobKey returns the Hash key for a job: forq:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// pendingKey is the Sorted Set of pending job ids scored by
// next_eligible_at in unix milliseconds. Ties sort lexically by id.
const pendingKey = keyPrefix + "pending"

// jobIDsKey is the Set tracking all job ids for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// settingsKey is the Hash of runtime settings.
const settingsKey = keyPrefix + "settings"
