package provision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clinic-provisioner/internal/audit"
	"clinic-provisioner/internal/common/aws"
	"clinic-provisioner/internal/common/errors"
	"clinic-provisioner/internal/common/logger"
	"clinic-provisioner/internal/common/metrics"
	"clinic-provisioner/internal/fly"
	"clinic-provisioner/internal/models"
)

// ProfileStore is the profile record store keyed by clinic id.
type ProfileStore interface {
	GetClinic(ctx context.Context, clinicID string) (*models.ClinicProfile, error)
	UpdateClinic(ctx context.Context, clinicID string, fields map[string]interface{}) error
}

// Embedder turns profile text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Launcher creates the clinic's agent compute instance.
type Launcher interface {
	CreateMachine(ctx context.Context, spec *fly.MachineSpec) (*fly.Machine, error)
}

// Alerter publishes remediation alerts for launch failures.
type Alerter interface {
	PublishLaunchFailure(ctx context.Context, alert aws.LaunchFailureAlert) error
}

// Service runs the provisioning workflow: fetch profile, embed it, commit
// vector and status, launch the agent. Strictly sequential; the first failed
// step aborts the run.
type Service struct {
	config   *Config
	logger   logger.Logger
	store    ProfileStore
	embedder Embedder
	launcher Launcher
	locker   Locker
	alerter  Alerter
	recorder audit.Recorder
}

type ServiceDependencies struct {
	Logger   logger.Logger
	Store    ProfileStore
	Embedder Embedder
	Launcher Launcher
	Locker   Locker
	Alerter  Alerter
	Recorder audit.Recorder
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = audit.NoopRecorder{}
	}

	return &Service{
		config:   config,
		logger:   deps.Logger,
		store:    deps.Store,
		embedder: deps.Embedder,
		launcher: deps.Launcher,
		locker:   deps.Locker,
		alerter:  deps.Alerter,
		recorder: recorder,
	}
}

// Execute runs one provisioning workflow end to end. The returned error is
// always a *errors.StandardError carrying the failing step's cause verbatim.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	log := s.logger.WithFields(map[string]interface{}{
		"clinicId":  input.ClinicID,
		"requestId": input.RequestID,
	})

	// Serialize by clinic id. Lock-backend outages are logged, not fatal:
	// the guard is a hardening, onboarding must not depend on Redis.
	acquired, err := s.locker.Acquire(ctx, input.ClinicID)
	if err != nil {
		log.Warn("provision lock unavailable, proceeding without serialization", map[string]interface{}{
			"error": err.Error(),
		})
	} else if !acquired {
		return nil, s.failStep(ctx, input, StepGuarding, time.Now(),
			errors.NewProvisionInProgressError(input.ClinicID))
	} else {
		defer s.locker.Release(ctx, input.ClinicID)
	}

	// 1. Fetch the profile row.
	stepStart := time.Now()
	profile, err := s.store.GetClinic(ctx, input.ClinicID)
	if err != nil {
		return nil, s.failStep(ctx, input, StepFetching, stepStart, err)
	}
	s.recordStep(ctx, input, StepFetching, stepStart)

	// Guard against duplicate launches on retried requests: a clinic the
	// store already marks live has an agent (or a documented inconsistency
	// an operator is handling). force bypasses the guard deliberately.
	if profile.IsLive() && !input.Force {
		return nil, s.failStep(ctx, input, StepGuarding, time.Now(),
			errors.NewAlreadyProvisionedError(input.ClinicID))
	}

	// 2. Embed the profile into a vector.
	stepStart = time.Now()
	blob := BuildEmbeddingBlob(profile)
	vector, err := s.embedder.Embed(ctx, blob)
	if err != nil {
		return nil, s.failStep(ctx, input, StepEmbedding, stepStart, err)
	}
	if len(vector) != s.embedder.Dimensions() {
		return nil, s.failStep(ctx, input, StepEmbedding, stepStart,
			errors.NewEmbeddingProviderError(
				fmt.Errorf("expected %d dimensions, got %d", s.embedder.Dimensions(), len(vector))))
	}
	s.recordStep(ctx, input, StepEmbedding, stepStart)

	// 3. Commit vector and status in one partial update. This is the
	// workflow's single visible side effect on the store and happens only
	// after a dimension-checked vector exists.
	stepStart = time.Now()
	err = s.store.UpdateClinic(ctx, input.ClinicID, map[string]interface{}{
		"vector": vector,
		"status": models.StatusLive,
	})
	if err != nil {
		return nil, s.failStep(ctx, input, StepCommitting, stepStart, err)
	}
	s.recordStep(ctx, input, StepCommitting, stepStart)

	// 4. Launch the agent instance.
	stepStart = time.Now()
	spec := s.buildMachineSpec(input.ClinicID)
	machine, err := s.launcher.CreateMachine(ctx, spec)
	if err != nil {
		s.handleLaunchFailure(ctx, input, spec, err, log)
		return nil, s.failStep(ctx, input, StepLaunching, stepStart, err)
	}
	s.recordStep(ctx, input, StepLaunching, stepStart)

	log.Info("clinic provisioned", map[string]interface{}{
		"machineName": spec.Name,
		"machineId":   machine.ID,
	})

	s.recorder.Record(ctx, audit.Event{
		ClinicID:  input.ClinicID,
		RequestID: input.RequestID,
		Step:      StepDone,
		Outcome:   "ok",
		Details:   spec.Name,
	})

	return &Output{
		ClinicID:    input.ClinicID,
		MachineID:   machine.ID,
		MachineName: spec.Name,
	}, nil
}

// BuildEmbeddingBlob concatenates the profile text fields in a fixed order:
// name, services joined by ", ", insurances joined by ", ", policies, all
// joined by single spaces. The order and separators are part of the contract;
// changing them changes which embedding a logically identical profile gets.
// Empty fields contribute empty strings so the blob is byte-deterministic.
func BuildEmbeddingBlob(profile *models.ClinicProfile) string {
	return strings.Join([]string{
		profile.Name,
		strings.Join(profile.Services, ", "),
		strings.Join(profile.Insurances, ", "),
		profile.Policies,
	}, " ")
}

// buildMachineSpec builds a fresh spec per launch attempt. The name carries a
// launch timestamp so a retried launch cannot collide with an earlier one.
func (s *Service) buildMachineSpec(clinicID string) *fly.MachineSpec {
	env := make(map[string]string, len(s.config.BaseEnv)+1)
	for k, v := range s.config.BaseEnv {
		env[k] = v
	}
	env["CLINIC_ID"] = clinicID

	return &fly.MachineSpec{
		Name:   fmt.Sprintf("%s-%s-%d", s.config.NamePrefix, clinicID, time.Now().Unix()),
		Region: s.config.Region,
		Config: fly.MachineConfig{
			Image:   s.config.Image,
			Cmd:     s.config.AgentCmd,
			Env:     env,
			Restart: fly.RestartPolicy{Policy: "on-failure"},
			Guest: fly.GuestConfig{
				CPUKind:  "shared",
				CPUs:     1,
				MemoryMB: 1024,
			},
		},
	}
}

// handleLaunchFailure deals with the workflow's most serious failure mode:
// the commit already marked the clinic live but no agent runs. Optionally
// rolls the status back, and always raises a remediation alert carrying the
// launcher's raw error.
func (s *Service) handleLaunchFailure(ctx context.Context, input *Input, spec *fly.MachineSpec, launchErr error, log logger.Logger) {
	// StandardError.Error() carries only the message; the launcher's status
	// code and raw body live in Details and must reach the operator.
	launchDetails := toStandardError(launchErr).Details

	storeStatus := models.StatusLive
	compensated := false

	if s.config.CompensateOnLaunchFailure {
		err := s.store.UpdateClinic(ctx, input.ClinicID, map[string]interface{}{
			"status": models.StatusProvisioningFailed,
		})
		if err != nil {
			compErr := errors.NewCompensationFailedError(input.ClinicID, err)
			log.Error("status rollback failed, clinic is live with no agent", map[string]interface{}{
				"machineName": spec.Name,
				"launchError": launchDetails,
				"rollbackErr": err.Error(),
			})
			s.recorder.Record(ctx, audit.Event{
				ClinicID:  input.ClinicID,
				RequestID: input.RequestID,
				Step:      StepLaunching,
				Outcome:   "compensation_failed",
				ErrorCode: string(compErr.Code),
				Details:   compErr.Details,
			})
		} else {
			compensated = true
			storeStatus = models.StatusProvisioningFailed
			log.Warn("clinic status rolled back after launch failure", map[string]interface{}{
				"machineName": spec.Name,
			})
		}
	} else {
		log.Error("launch failed after commit, clinic is live with no agent", map[string]interface{}{
			"machineName": spec.Name,
			"launchError": launchDetails,
		})
	}

	if s.alerter != nil {
		alert := aws.LaunchFailureAlert{
			ClinicID:     input.ClinicID,
			RequestID:    input.RequestID,
			MachineName:  spec.Name,
			LauncherErr:  launchDetails,
			Compensated:  compensated,
			StoreStatus:  storeStatus,
			OccurredAtMS: time.Now().UnixMilli(),
		}
		if err := s.alerter.PublishLaunchFailure(ctx, alert); err != nil {
			log.WithError(err).Error("failed to publish launch failure alert", nil)
		}
	}
}

func (s *Service) failStep(ctx context.Context, input *Input, step string, start time.Time, err error) error {
	stdErr := toStandardError(err)
	metrics.ProvisionStepFailures.WithLabelValues(step, string(stdErr.Code)).Inc()

	s.recorder.Record(ctx, audit.Event{
		ClinicID:  input.ClinicID,
		RequestID: input.RequestID,
		Step:      step,
		Outcome:   "failed",
		ErrorCode: string(stdErr.Code),
		Details:   stdErr.Details,
		Duration:  time.Since(start).Milliseconds(),
	})

	s.logger.Error("provisioning step failed", map[string]interface{}{
		"clinicId":  input.ClinicID,
		"requestId": input.RequestID,
		"step":      step,
		"errorCode": string(stdErr.Code),
		"details":   stdErr.Details,
		"retryable": stdErr.Retryable,
	})

	return stdErr
}

func (s *Service) recordStep(ctx context.Context, input *Input, step string, start time.Time) {
	s.recorder.Record(ctx, audit.Event{
		ClinicID:  input.ClinicID,
		RequestID: input.RequestID,
		Step:      step,
		Outcome:   "ok",
		Duration:  time.Since(start).Milliseconds(),
	})
}

func toStandardError(err error) *errors.StandardError {
	if stdErr, ok := err.(*errors.StandardError); ok {
		return stdErr
	}
	return errors.NewInternalError(err)
}
