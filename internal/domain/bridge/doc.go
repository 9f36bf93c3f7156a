// Package bridge implements the message bridge between mini-app JavaScript
// and native host capabilities.
//
// Inbound messages are JSON objects {id, action, param}. Each accepted
// message produces exactly one completion, delivered to the renderer as a
// script:
//
//	MiniAppBridge.execSuccessCallback("<id>", "<value>")
//	MiniAppBridge.execErrorCallback("<id>", "<error json>")
//
// Every string embedded in a script is escaped here; values coming from the
// host or the mini-app never reach the renderer unquoted.
//
// Gated commands consult the permission store first. An allowed grant
// invokes the capability, a not-determined grant suspends the command on a
// user prompt and persists the decision, and a denied or restricted grant
// completes with an error without touching the capability.
//
// Prompts for one mini-app instance are shown one at a time, first come
// first served. A request identical to a prompt already pending joins it
// instead of queueing a second dialog.
package bridge
