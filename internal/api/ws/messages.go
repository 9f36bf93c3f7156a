package ws

import (
	"encoding/json"

	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

// Message types.
const (
	TypeBridge      = "bridge"
	TypeDecision    = "decision"
	TypeAsset       = "asset"
	TypeCancelAsset = "cancel_asset"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeReady       = "ready"
	TypeScript      = "script"
	TypePrompt      = "prompt"
	TypeError       = "error"
)

// Prompt kinds.
const (
	PromptDevice = "device"
	PromptCustom = "custom"
)

// Inbound is a client message. Only the fields of its type are set.
type Inbound struct {
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message,omitempty"`
	PromptID  string          `json:"promptId,omitempty"`
	Allow     bool            `json:"allow,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Path      string          `json:"path,omitempty"`
}

// Ready announces a live instance.
type Ready struct {
	Type       string `json:"type"`
	AppID      string `json:"appId"`
	Scheme     string `json:"scheme"`
	InstanceID string `json:"instanceId"`
}

// Script carries JavaScript for the renderer.
type Script struct {
	Type   string `json:"type"`
	Script string `json:"script"`
}

// Prompt asks the renderer's UI for a permission decision.
type Prompt struct {
	Type        string                        `json:"type"`
	PromptID    string                        `json:"promptId"`
	Kind        string                        `json:"kind"`
	Permission  types.DevicePermissionType    `json:"permission,omitempty"`
	Permissions []types.PermissionDeclaration `json:"permissions,omitempty"`
}

// Asset is a resolved scheme response. Data is base64 encoded on the wire.
type Asset struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Path      string `json:"path"`
	MIMEType  string `json:"mimeType"`
	Length    int    `json:"length"`
	Data      []byte `json:"data"`
}

// Notice is a pong or an error.
type Notice struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}
