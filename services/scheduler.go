// services/scheduler.go
package services

import (
	"log"
	"time"

	"engagement-api/models"

	"github.com/go-co-op/gocron/v2"
)

func (s *UserService) StartSessionCleanup() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every hour: drop sessions past their expiry
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			res := s.DB.Where("expires_at <= ?", time.Now()).
				Delete(&models.Session{})
			if res.Error != nil {
				log.Printf("[Scheduler] session cleanup failed: %v", res.Error)
				return
			}
			if res.RowsAffected > 0 {
				log.Printf("🧹 purged %d expired sessions", res.RowsAffected)
			}
		}),
	)
}
