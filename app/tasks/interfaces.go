package tasks

// TaskSchedulerInterface is what the HTTP layer needs from the scheduler.
//
//	scheduler := NewScheduler(configCache, feedRepo, entryRepo, pipeline, interval, workerCount)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueFeedUpdate("planet")
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	EnqueueFeedUpdate(feedName string) (TaskInterface, error)
}
