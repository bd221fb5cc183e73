package services

import (
	"log"
	"sync"
	"time"
)

// SweepScheduler periodically finds accounts whose retention interval has
// elapsed and enqueues a sweep job for each. Execution happens in the job
// workers; the scheduler itself never touches a provider.
type SweepScheduler struct {
	accountService *AccountService
	jobService     *JobService
	interval       time.Duration
	stopChan       chan struct{}
	running        bool
	mu             sync.Mutex
	scanning       sync.Mutex // 防止扫描周期重叠
}

// NewSweepScheduler creates a new sweep scheduler
func NewSweepScheduler(accountService *AccountService, jobService *JobService, interval time.Duration) *SweepScheduler {
	return &SweepScheduler{
		accountService: accountService,
		jobService:     jobService,
		interval:       interval,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the periodic due-account scan
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("[SweepScheduler] Starting with interval: %v", s.interval)

	go func() {
		// 启动后等待 10 秒再执行第一次扫描，让服务完全就绪
		select {
		case <-time.After(10 * time.Second):
			s.scanDueAccounts()
		case <-s.stopChan:
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.scanDueAccounts()
			case <-s.stopChan:
				log.Println("[SweepScheduler] Stopping")
				return
			}
		}
	}()
}

// Stop stops the scheduler
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.running = false
}

// scanDueAccounts enqueues one sweep job per due account
func (s *SweepScheduler) scanDueAccounts() {
	// 防止扫描周期重叠：如果上一轮还没结束，跳过本轮
	if !s.scanning.TryLock() {
		log.Println("[SweepScheduler] Previous scan still running, skipping this cycle")
		return
	}
	defer s.scanning.Unlock()

	accounts, err := s.accountService.ListSweepDue(time.Now())
	if err != nil {
		log.Printf("[SweepScheduler] Failed to list due accounts: %v", err)
		return
	}

	if len(accounts) == 0 {
		return
	}

	log.Printf("[SweepScheduler] %d accounts due for sweep", len(accounts))

	for _, account := range accounts {
		// 队列里已有待处理任务时不重复入队
		if err := s.jobService.EnqueueSweepUnlessPending(account.ID, time.Now()); err != nil {
			log.Printf("[SweepScheduler] Failed to enqueue sweep for account %d: %v", account.ID, err)
		}
	}
}
