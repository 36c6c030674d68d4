package module

import (
	"context"

	"github.com/geebinge/iot-hub-device-update/pkg/operation"
)

// OperationModule exposes a bare operation as a module.
type OperationModule struct {
	info ContractInfo
	op   operation.Operation
}

var _ Interface = (*OperationModule)(nil)

// FromOperation wraps op. Deinitialize cancels op and Destroy destroys it.
func FromOperation(info ContractInfo, op operation.Operation) *OperationModule {
	if info.Name == "" {
		info.Name = op.Name()
	}
	return &OperationModule{info: info, op: op}
}

func (m *OperationModule) ContractInfo() ContractInfo       { return m.info }
func (m *OperationModule) Initialize(context.Context) error { return nil }
func (m *OperationModule) DoWork(ctx context.Context) error { return m.op.DoWork(ctx) }
func (m *OperationModule) Deinitialize()                    { m.op.Cancel() }
func (m *OperationModule) Destroy()                         { m.op.Destroy() }
func (m *OperationModule) Data() any                        { return m.op }
