package types

// TransferRecord is a serialized session in flight between storage
// scopes. Exactly one destination scope claims it before it expires.
type TransferRecord struct {
	Chat        SerializedSession `json:"chat"`
	TimestampMS int64             `json:"timestampInMilliseconds"`
	ToWorkspace URI               `json:"toWorkspace"`
	InputValue  string            `json:"inputValue,omitempty"`
	Location    Location          `json:"location"`
	Mode        string            `json:"mode,omitempty"`
}
