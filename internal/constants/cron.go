package constants

import "time"

// Cron constants for scheduler policy and job storage.

// CronSubdirectory is the subdirectory for cron state within the workspace.
const CronSubdirectory = "cron"

// CronJobsFile is the filename used to persist the job document.
const CronJobsFile = "jobs.json"

// CronJobIDFormat is the format string used to generate unique job IDs.
// The argument is a UUID.
const CronJobIDFormat = "job_%s"

// CronStoreVersion is the current on-disk job document version.
const CronStoreVersion = 1

// DefaultStuckRunThreshold is how old a running marker must be before a run
// is presumed abandoned by a crashed process and becomes clearable. Empirical
// safety margin; override via [cron] stuck_threshold_minutes.
const DefaultStuckRunThreshold = 2 * time.Hour

// DefaultMinRefireGap is the minimum delay before the wake timer may re-check
// past-due jobs. A zero-delay re-arm on a past-due-but-blocked job would spin
// the loop; override via [cron] min_refire_gap_ms.
const DefaultMinRefireGap = 2000 * time.Millisecond
