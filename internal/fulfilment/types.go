package fulfilment

import "encoding/json"

// Intent names.
const (
	IntentSync       = "action.devices.SYNC"
	IntentQuery      = "action.devices.QUERY"
	IntentExecute    = "action.devices.EXECUTE"
	IntentDisconnect = "action.devices.DISCONNECT"
)

// Device schema constants for the switch model.
const (
	DeviceTypeSwitch = "action.devices.types.SWITCH"
	TraitOnOff       = "action.devices.traits.OnOff"
	CommandOnOff     = "action.devices.commands.OnOff"
)

// Result statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// Error codes carried in payloads.
const (
	ErrorNotSupported   = "notSupported"
	ErrorDeviceNotFound = "deviceNotFound"
	ErrorHard           = "hardError"
	ErrorTransient      = "transientError"
	ErrorInternal       = "internalError"
	ErrorProtocol       = "protocolError"
)

// Request is the inbound intent envelope.
type Request struct {
	RequestID string  `json:"requestId"`
	Inputs    []Input `json:"inputs"`
}

// Input is one intent with its raw payload.
type Input struct {
	Intent  string          `json:"intent"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the outbound envelope. RequestID echoes the request.
type Response struct {
	RequestID string `json:"requestId"`
	Payload   any    `json:"payload"`
}

// ErrorPayload is the payload of an envelope-level failure.
type ErrorPayload struct {
	ErrorCode string `json:"errorCode"`
}

// EmptyPayload is returned for intents that need no data back.
type EmptyPayload struct{}

// SyncPayload answers a discovery intent.
type SyncPayload struct {
	AgentUserID string       `json:"agentUserId"`
	Devices     []SyncDevice `json:"devices"`
}

// SyncDevice describes one device to the platform.
type SyncDevice struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Traits          []string   `json:"traits"`
	Name            DeviceName `json:"name"`
	WillReportState bool       `json:"willReportState"`
	DeviceInfo      DeviceInfo `json:"deviceInfo"`
}

// DeviceName holds the display name.
type DeviceName struct {
	Name string `json:"name"`
}

// DeviceInfo holds manufacturer metadata.
type DeviceInfo struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// DeviceRef identifies a device in query and execute payloads.
type DeviceRef struct {
	ID string `json:"id"`
}

// QueryRequest is the payload of a query intent.
type QueryRequest struct {
	Devices []DeviceRef `json:"devices"`
}

// QueryPayload answers a query intent with one entry per requested id.
type QueryPayload struct {
	Devices map[string]DeviceStatus `json:"devices"`
}

// DeviceStatus is one device's entry in a query response. Online and On
// are omitted for devices reported with an error code.
type DeviceStatus struct {
	Online    *bool  `json:"online,omitempty"`
	On        *bool  `json:"on,omitempty"`
	Status    string `json:"status"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// ExecuteRequest is the payload of an execute intent.
type ExecuteRequest struct {
	Commands []ExecuteCommand `json:"commands"`
}

// ExecuteCommand targets a device group with one or more executions.
type ExecuteCommand struct {
	Devices   []DeviceRef `json:"devices"`
	Execution []Execution `json:"execution"`
}

// Execution is a single command and its params.
type Execution struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// OnOffParams are the params of the OnOff command.
type OnOffParams struct {
	On *bool `json:"on"`
}

// ExecutePayload answers an execute intent.
type ExecutePayload struct {
	Commands []CommandResult `json:"commands"`
}

// CommandResult is the outcome for the listed ids.
type CommandResult struct {
	IDs       []string     `json:"ids"`
	Status    string       `json:"status"`
	States    *StateReport `json:"states,omitempty"`
	ErrorCode string       `json:"errorCode,omitempty"`
}

// StateReport is the state returned with a successful command.
type StateReport struct {
	Online bool `json:"online"`
	On     bool `json:"on"`
}
