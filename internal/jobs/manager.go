package jobs

import "context"

// CombinedStatus aggregates both jobs for the status endpoint.
type CombinedStatus struct {
	EmailProcessing Status `json:"emailProcessing"`
	ResponseSending Status `json:"responseSending"`
}

// Manager is the job control facade: pass-through triggers plus
// read-only status aggregation. It adds no state of its own and never
// blocks on a mid-cycle job.
type Manager struct {
	intake   *Runner
	dispatch *Runner
}

func NewManager(intake, dispatch *Runner) *Manager {
	return &Manager{intake: intake, dispatch: dispatch}
}

func (m *Manager) Start(ctx context.Context) {
	m.intake.Start(ctx)
	m.dispatch.Start(ctx)
}

func (m *Manager) Stop() {
	m.intake.Stop()
	m.dispatch.Stop()
}

// TriggerProcessing kicks an intake cycle; a no-op if one is running.
func (m *Manager) TriggerProcessing(ctx context.Context) error {
	return m.intake.Trigger(ctx)
}

// TriggerSending kicks a dispatch cycle; a no-op if one is running.
func (m *Manager) TriggerSending(ctx context.Context) error {
	return m.dispatch.Trigger(ctx)
}

func (m *Manager) Status() CombinedStatus {
	return CombinedStatus{
		EmailProcessing: m.intake.Status(),
		ResponseSending: m.dispatch.Status(),
	}
}
