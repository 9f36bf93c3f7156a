package bridge

import (
	"errors"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
)

// Action is a bridge command name.
type Action string

const (
	ActionGetUniqueID              Action = "getUniqueId"
	ActionGetCurrentPosition       Action = "getCurrentPosition"
	ActionRequestPermission        Action = "requestPermission"
	ActionRequestCustomPermissions Action = "requestCustomPermissions"
	ActionShareInfo                Action = "shareInfo"
	ActionGetUserName              Action = "getUserName"
	ActionGetProfilePhoto          Action = "getProfilePhoto"
	ActionGetContacts              Action = "getContacts"
	ActionGetAccessToken           Action = "getAccessToken"
	ActionLoadInterstitialAd       Action = "loadInterstitialAd"
	ActionShowInterstitialAd       Action = "showInterstitialAd"
	ActionLoadRewardedAd           Action = "loadRewardedAd"
	ActionShowRewardedAd           Action = "showRewardedAd"
)

// Actions returns every supported action.
func Actions() []Action {
	return []Action{
		ActionGetUniqueID, ActionGetCurrentPosition, ActionRequestPermission,
		ActionRequestCustomPermissions, ActionShareInfo, ActionGetUserName,
		ActionGetProfilePhoto, ActionGetContacts, ActionGetAccessToken,
		ActionLoadInterstitialAd, ActionShowInterstitialAd,
		ActionLoadRewardedAd, ActionShowRewardedAd,
	}
}

// Message is one inbound bridge request. Param holds the raw JSON of the
// param field, or nil when absent.
type Message struct {
	ID     string
	Action Action
	Param  []byte
}

var (
	errNoID      = errors.New("bridge message has no id")
	errMalformed = errors.New("malformed bridge message")
)

// ParseMessage decodes raw. When the message is malformed but still carries
// a usable id, the returned message has that id and a non-nil error, so the
// caller can reply with unexpectedMessageFormat. Without an id the message
// cannot be answered.
func ParseMessage(raw []byte) (*Message, error) {
	if !gjson.ValidBytes(raw) {
		// Salvage the id from a truncated or otherwise broken payload.
		if id := salvageID(raw); id != "" {
			return &Message{ID: id}, errMalformed
		}
		return nil, errNoID
	}

	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, errNoID
	}
	id := idString(root.Get("id"))
	if id == "" {
		return nil, errNoID
	}
	msg := &Message{ID: id}

	action := root.Get("action")
	if action.Type != gjson.String || action.Str == "" {
		return msg, errMalformed
	}
	msg.Action = Action(action.Str)

	if param := root.Get("param"); param.Exists() && param.Type != gjson.Null {
		msg.Param = []byte(param.Raw)
	}
	return msg, nil
}

func idString(v gjson.Result) string {
	switch v.Type {
	case gjson.String, gjson.Number:
		return v.String()
	}
	return ""
}

func salvageID(raw []byte) string {
	return idString(gjson.GetBytes(raw, "id"))
}

// decodeParam unmarshals the message param into v.
func (m *Message) decodeParam(v any) error {
	if len(m.Param) == 0 {
		return errMalformed
	}
	return sonic.Unmarshal(m.Param, v)
}

// Param payloads.
type (
	permissionParam struct {
		Permission string `json:"permission"`
	}

	customPermissionParam struct {
		Permissions []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"permissions"`
	}

	shareParam struct {
		ShareInfo struct {
			Content string `json:"content"`
		} `json:"shareInfo"`
	}

	accessTokenParam struct {
		Audience string   `json:"audience"`
		Scopes   []string `json:"scopes"`
	}

	adParam struct {
		AdUnitID string `json:"adUnitId"`
	}
)
