// Package module defines the agent module contract and the host that drives
// modules on a polling cadence.
package module

import (
	"context"

	"github.com/geebinge/iot-hub-device-update/pkg/operation"
)

// ContractInfo describes a module and the contract version it implements.
type ContractInfo struct {
	Provider      string
	Name          string
	Version       string
	ContractMajor int
	ContractMinor int
}

// Interface is implemented by agent modules.
//
// DoWork is called on every host tick and must return promptly. Modules
// release resources held for the session in Deinitialize and everything else
// in Destroy.
type Interface interface {
	ContractInfo() ContractInfo
	Initialize(ctx context.Context) error
	DoWork(ctx context.Context) error
	Deinitialize()
	Destroy()

	// Data returns the module data slot, usually the module's operation.
	Data() any
}

// OperationFromModule returns the operation held in the module data slot.
func OperationFromModule(m Interface) (operation.Operation, bool) {
	if m == nil {
		return nil, false
	}
	op, ok := m.Data().(operation.Operation)
	return op, ok && op != nil
}
