package services

import (
	"log"
	"time"
)

// finishedJobRetention is how long done and failed queue entries are
// kept for inspection before being pruned
const finishedJobRetention = 7 * 24 * time.Hour

// MaintenanceScheduler handles periodic housekeeping: expired sessions
// and finished queue entries
type MaintenanceScheduler struct {
	sessionService *SessionService
	jobService     *JobService
	interval       time.Duration
	stopChan       chan struct{}
	running        bool
}

// NewMaintenanceScheduler creates a new maintenance scheduler
func NewMaintenanceScheduler(sessionService *SessionService, jobService *JobService, interval time.Duration) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		sessionService: sessionService,
		jobService:     jobService,
		interval:       interval,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the maintenance scheduler
func (s *MaintenanceScheduler) Start() {
	if s.running {
		return
	}
	s.running = true
	go s.run()
	log.Printf("[MaintenanceScheduler] Started with interval %v", s.interval)
}

// Stop stops the maintenance scheduler
func (s *MaintenanceScheduler) Stop() {
	if !s.running {
		return
	}
	close(s.stopChan)
	s.running = false
	log.Println("[MaintenanceScheduler] Stopped")
}

func (s *MaintenanceScheduler) run() {
	// Run immediately on start
	s.cleanup()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			return
		}
	}
}

func (s *MaintenanceScheduler) cleanup() {
	pruned, err := s.sessionService.PruneExpired()
	if err != nil {
		log.Printf("[MaintenanceScheduler] Error pruning sessions: %v", err)
	} else if pruned > 0 {
		log.Printf("[MaintenanceScheduler] Pruned %d expired sessions", pruned)
	}

	cutoff := time.Now().Add(-finishedJobRetention)
	pruned, err = s.jobService.PruneFinished(cutoff)
	if err != nil {
		log.Printf("[MaintenanceScheduler] Error pruning finished jobs: %v", err)
	} else if pruned > 0 {
		log.Printf("[MaintenanceScheduler] Pruned %d finished jobs", pruned)
	}
}
