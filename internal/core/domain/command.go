package domain

import (
	"errors"
	"fmt"
)

const (
	COMMAND_RESET_NODE_TABLE         = "reset_node_table"
	COMMAND_RESET_ENERGY             = "reset_energy"
	COMMAND_RESET_PEAK_POWER         = "reset_peak_power"
	COMMAND_REQUEST_DEVICE_DISCOVERY = "request_device_discovery"
	COMMAND_REQUEST_GATEWAY_VERSION  = "request_gateway_version"
	COMMAND_SAVE_ENERGY              = "save_energy"
)

var ErrUnknownCommand = errors.New("unknown command")

// MonitorCommandRequest is an operator action handled by the monitor actor.
type MonitorCommandRequest interface {
	ActorRequest
	MonitorCommand() string
}

type MonitorCommandResponse struct {
	ActorResponseMixIn
	Command string
}

// ResetNodeTableRequest clears the registry and every counter.
type ResetNodeTableRequest struct {
	ActorRequestMixIn
}

func (ResetNodeTableRequest) MonitorCommand() string { return COMMAND_RESET_NODE_TABLE }

// ResetEnergyRequest zeroes the energy accumulator only.
type ResetEnergyRequest struct {
	ActorRequestMixIn
}

func (ResetEnergyRequest) MonitorCommand() string { return COMMAND_RESET_ENERGY }

// ResetPeakPowerRequest zeroes the peak power of every optimizer.
type ResetPeakPowerRequest struct {
	ActorRequestMixIn
}

func (ResetPeakPowerRequest) MonitorCommand() string { return COMMAND_RESET_PEAK_POWER }

type RequestDeviceDiscoveryRequest struct {
	ActorRequestMixIn
}

func (RequestDeviceDiscoveryRequest) MonitorCommand() string {
	return COMMAND_REQUEST_DEVICE_DISCOVERY
}

type RequestGatewayVersionRequest struct {
	ActorRequestMixIn
	Node uint16
}

func (RequestGatewayVersionRequest) MonitorCommand() string {
	return COMMAND_REQUEST_GATEWAY_VERSION
}

// SaveEnergyRequest checkpoints the energy accumulator to the store.
type SaveEnergyRequest struct {
	ActorRequestMixIn
}

func (SaveEnergyRequest) MonitorCommand() string { return COMMAND_SAVE_ENERGY }

// CommandFromName maps an operator command name to its request.
func CommandFromName(name string) (MonitorCommandRequest, error) {
	switch name {
	case COMMAND_RESET_NODE_TABLE:
		return ResetNodeTableRequest{}, nil
	case COMMAND_RESET_ENERGY:
		return ResetEnergyRequest{}, nil
	case COMMAND_RESET_PEAK_POWER:
		return ResetPeakPowerRequest{}, nil
	case COMMAND_REQUEST_DEVICE_DISCOVERY:
		return RequestDeviceDiscoveryRequest{}, nil
	case COMMAND_REQUEST_GATEWAY_VERSION:
		return RequestGatewayVersionRequest{Node: 0x0001}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

// ensure interface compliance
var _ MonitorCommandRequest = (*ResetNodeTableRequest)(nil)
var _ MonitorCommandRequest = (*ResetEnergyRequest)(nil)
var _ MonitorCommandRequest = (*ResetPeakPowerRequest)(nil)
var _ MonitorCommandRequest = (*RequestDeviceDiscoveryRequest)(nil)
var _ MonitorCommandRequest = (*RequestGatewayVersionRequest)(nil)
var _ MonitorCommandRequest = (*SaveEnergyRequest)(nil)
