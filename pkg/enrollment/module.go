package enrollment

import (
	"context"

	"github.com/geebinge/iot-hub-device-update/pkg/module"
)

// Module contract values.
const (
	ModuleProvider = "Microsoft"
	ModuleName     = "EnrollmentManagement"
	ModuleVersion  = "1.0"
)

// Module is the agent module wrapping the enrollment operation.
type Module struct {
	op *Operation
}

var _ module.Interface = (*Module)(nil)

// NewModule creates the enrollment management module.
func NewModule(cfg Config) *Module {
	return &Module{op: New(cfg)}
}

// ContractInfo describes the module.
func (m *Module) ContractInfo() module.ContractInfo {
	return module.ContractInfo{
		Provider:      ModuleProvider,
		Name:          ModuleName,
		Version:       ModuleVersion,
		ContractMajor: 1,
		ContractMinor: 0,
	}
}

// Initialize makes the first DoWork start the exchange.
func (m *Module) Initialize(context.Context) error {
	m.op.ScheduleNow()
	return nil
}

// DoWork advances the enrollment operation.
func (m *Module) DoWork(ctx context.Context) error {
	return m.op.DoWork(ctx)
}

// Deinitialize cancels the operation and releases its resources.
func (m *Module) Deinitialize() {
	m.op.Cancel()
	m.op.release()
}

// Destroy destroys the operation.
func (m *Module) Destroy() {
	m.op.Destroy()
}

// Data returns the enrollment operation.
func (m *Module) Data() any {
	return m.op
}

// Operation returns the enrollment operation.
func (m *Module) Operation() *Operation {
	return m.op
}
