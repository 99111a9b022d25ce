package ipc

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2thetop/scalar/maintenance"
)

// Maintainer is the part of the maintenance scheduler the handler drives.
// *maintenance.Scheduler satisfies it.
type Maintainer interface {
	NewOneTimeStep(kind maintenance.Kind) (maintenance.Step, error)
	EnqueueOneTimeStep(step maintenance.Step) bool
	Status() maintenance.QueueStatus
	Registrations() []maintenance.Registration
}

// Handler translates requests into scheduler calls. Every failure is
// answered with an error response; nothing propagates into the scheduler.
type Handler struct {
	maintainer Maintainer
	logger     *slog.Logger
	newID      func() string
}

// NewHandler creates a Handler. A nil logger discards output.
func NewHandler(maintainer Maintainer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		maintainer: maintainer,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

// Register installs the handler's commands on s.
func (h *Handler) Register(s *Server) {
	s.Handle(CommandRunMaintenance, h.RunMaintenance)
	s.Handle(CommandGetStatus, h.GetStatus)
}

// RunMaintenance enqueues a one-time step for the requested task.
func (h *Handler) RunMaintenance(req *Request) *Response {
	var params RunMaintenanceParams
	if len(req.Params) == 0 {
		h.logger.Warn("run_maintenance request without params")
		return ErrorResponse(ErrCodeValidation, "params.task is required")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.logger.Warn("failed to parse run_maintenance params", "error", err)
		return ErrorResponse(ErrCodeValidation, "invalid params: "+err.Error())
	}

	kind, err := maintenance.ParseKind(params.Task)
	if err != nil {
		h.logger.Warn("run_maintenance request for unknown task", "task", params.Task)
		return ErrorResponse(ErrCodeValidation, "unknown task: "+params.Task)
	}

	step, err := h.maintainer.NewOneTimeStep(kind)
	if err != nil {
		h.logger.Error("failed to create one-time step", "step", string(kind), "error", err)
		return ErrorResponse(ErrCodeInternal, "failed to create step")
	}
	if !h.maintainer.EnqueueOneTimeStep(step) {
		return ErrorResponse(ErrCodeUnavailable, "maintenance queue is stopped")
	}

	requestID := h.newID()
	h.logger.Info("queued one-time maintenance step",
		"step", string(kind),
		"request_id", requestID)
	return SuccessResponse(RunMaintenanceResult{RequestID: requestID, Task: string(kind)})
}

// GetStatus reports the queue state and registered timers.
func (h *Handler) GetStatus(req *Request) *Response {
	qs := h.maintainer.Status()
	regs := h.maintainer.Registrations()

	status := Status{
		Pending:   qs.Pending,
		Running:   string(qs.Running),
		Completed: qs.Completed,
		Stopped:   qs.Stopped,
		Timers:    make([]Timer, 0, len(regs)),
	}
	for _, r := range regs {
		status.Timers = append(status.Timers, Timer{
			Task:          string(r.Kind),
			DueSeconds:    r.Due.Seconds(),
			PeriodSeconds: r.Period.Seconds(),
		})
	}
	return SuccessResponse(status)
}
