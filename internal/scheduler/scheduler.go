package scheduler

import (
	"context"
	"fmt"
	"time"

	"fleetops/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// repairTimeout bounds one scheduled repair run
const repairTimeout = time.Minute

// Scheduler runs periodic maintenance jobs
type Scheduler struct {
	cron       *cron.Cron
	superadmin service.SuperadminService
	log        logrus.FieldLogger
}

func New(superadmin service.SuperadminService, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		superadmin: superadmin,
		log:        log.WithField("component", "scheduler"),
	}
}

// ScheduleRepair registers the superadmin repair under a cron spec such as "@every 10m".
// An empty spec leaves the job disabled.
func (s *Scheduler) ScheduleRepair(spec string) error {
	if spec == "" {
		s.log.Info("scheduled superadmin repair disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, s.RunRepair); err != nil {
		return fmt.Errorf("invalid repair schedule %q: %w", spec, err)
	}
	s.log.WithField("schedule", spec).Info("scheduled superadmin repair")
	return nil
}

// RunRepair performs one repair pass; failures are logged and retried on the next tick
func (s *Scheduler) RunRepair() {
	ctx, cancel := context.WithTimeout(context.Background(), repairTimeout)
	defer cancel()

	result, err := s.superadmin.Repair(ctx, service.TriggerSchedule)
	if err != nil {
		s.log.WithError(err).Error("scheduled superadmin repair failed")
		return
	}
	s.log.WithField("granted", result.GrantedCount).Debug("scheduled superadmin repair finished")
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
