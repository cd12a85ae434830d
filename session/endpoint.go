package session

import (
	"context"
	"sort"

	"github.com/go-kit/kit/endpoint"

	"github.com/xmidt-org/teleop/devicemanager"
	"github.com/xmidt-org/teleop/message"
)

// commandEndpoints is every Connected-state device command wrapped as a
// go-kit endpoint.Endpoint, mirroring the teacher's
// makeTranslationEndpoint: one request/response/error shape for every
// operation, regardless of which devicemanager.Manager call backs it.
type commandEndpoints struct {
	startScanning endpoint.Endpoint
	stopScanning  endpoint.Endpoint
	deviceList    endpoint.Endpoint
	output        endpoint.Endpoint
	input         endpoint.Endpoint
	stopDevice    endpoint.Endpoint
	stopAll       endpoint.Endpoint
}

func newCommandEndpoints(devices *devicemanager.Manager) commandEndpoints {
	return commandEndpoints{
		startScanning: makeStartScanningEndpoint(devices),
		stopScanning:  makeStopScanningEndpoint(devices),
		deviceList:    makeDeviceListEndpoint(devices),
		output:        makeOutputEndpoint(devices),
		input:         makeInputEndpoint(devices),
		stopDevice:    makeStopDeviceEndpoint(devices),
		stopAll:       makeStopAllEndpoint(devices),
	}
}

func makeStartScanningEndpoint(devices *devicemanager.Manager) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		return nil, devices.StartScanning(ctx)
	}
}

func makeStopScanningEndpoint(devices *devicemanager.Manager) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		return nil, devices.StopScanning(ctx)
	}
}

func makeDeviceListEndpoint(devices *devicemanager.Manager) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		return devices.RequestDeviceList(), nil
	}
}

// outputRequest carries one OutputCmd's subcommands through the endpoint;
// they are dispatched in FeatureIndex order, stopping at the first error.
type outputRequest struct {
	deviceIndex uint32
	subcommands []message.OutputSubcommand
}

func makeOutputEndpoint(devices *devicemanager.Manager) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(outputRequest)
		subs := append([]message.OutputSubcommand(nil), req.subcommands...)
		sort.SliceStable(subs, func(i, j int) bool { return subs[i].FeatureIndex < subs[j].FeatureIndex })
		for _, sub := range subs {
			if err := devices.DispatchOutput(ctx, req.deviceIndex, sub); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
}

type inputRequest struct {
	deviceIndex uint32
	cmd         message.InputCmd
}

func makeInputEndpoint(devices *devicemanager.Manager) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(inputRequest)
		return devices.DispatchInput(ctx, req.deviceIndex, req.cmd)
	}
}

type deviceIndexRequest struct{ deviceIndex uint32 }

func makeStopDeviceEndpoint(devices *devicemanager.Manager) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(deviceIndexRequest)
		return nil, devices.DispatchStopDevice(ctx, req.deviceIndex)
	}
}

func makeStopAllEndpoint(devices *devicemanager.Manager) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		for _, entry := range devices.RequestDeviceList() {
			if err := devices.DispatchStopDevice(ctx, entry.DeviceIndex); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
}
