package protocol

import (
	"sync"

	"github.com/xmidt-org/teleop/message"
)

// commandKey identifies one (feature, output type) pair the CommandManager
// tracks a last-written value for.
type commandKey struct {
	FeatureIndex uint32
	OutputType   message.OutputType
}

// CommandManager stores the last scalar value written per feature/output
// pair and suppresses redundant writes, grounded on
// device/protocol/generic_command_manager.rs's GenericCommandManager.
type CommandManager struct {
	mu       sync.Mutex
	last     map[commandKey]uint32
	writable []commandKey
}

// NewCommandManager builds a CommandManager that knows about every
// writable (feature_index, output_type) pair in features, used both to
// suppress redundant writes and to compute stop commands.
func NewCommandManager(features []message.DeviceFeature) *CommandManager {
	cm := &CommandManager{last: make(map[commandKey]uint32)}
	for _, f := range features {
		if f.Output == nil {
			continue
		}
		for ot := range f.Output {
			cm.writable = append(cm.writable, commandKey{FeatureIndex: f.FeatureIndex, OutputType: ot})
		}
	}
	return cm
}

// Update records value for (featureIndex, outputType) and reports whether
// the write should actually be issued: true the first time, whenever the
// value changed, or whenever force is set.
func (cm *CommandManager) Update(featureIndex uint32, outputType message.OutputType, value uint32, force bool) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	key := commandKey{FeatureIndex: featureIndex, OutputType: outputType}
	prev, known := cm.last[key]
	cm.last[key] = value
	return force || !known || prev != value
}

// LastValue returns the most recently written value for key, or 0 if
// nothing has been written yet.
func (cm *CommandManager) LastValue(featureIndex uint32, outputType message.OutputType) uint32 {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.last[commandKey{FeatureIndex: featureIndex, OutputType: outputType}]
}

// StopValues returns every writable (feature_index, output_type) pair set
// to 0, the command manager's contribution to a device's StopDeviceCmd
// handling.
func (cm *CommandManager) StopValues() map[commandKey]uint32 {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	stops := make(map[commandKey]uint32, len(cm.writable))
	for _, key := range cm.writable {
		stops[key] = 0
		cm.last[key] = 0
	}
	return stops
}
