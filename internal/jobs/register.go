package jobs

import (
	"time"

	"github.com/riverqueue/river"
)

// PeriodicJobs returns the deadline scan, run on start and every
// scanInterval, and the daily notification cleanup.
func PeriodicJobs(scanInterval time.Duration) []*river.PeriodicJob {
	if scanInterval <= 0 {
		scanInterval = DefaultDeadlineScanInterval
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(scanInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return DeadlineCheckArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return NotificationCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// Queues returns the queue configuration the workers expect.
func Queues(maxWorkers int) map[string]river.QueueConfig {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return map[string]river.QueueConfig{
		river.QueueDefault: {MaxWorkers: maxWorkers},
		QueueEvents:        {MaxWorkers: maxWorkers},
	}
}
