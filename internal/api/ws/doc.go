// Package ws connects a remote renderer to a mini-app instance over a
// WebSocket.
//
// One connection is one mini-app instance. The renderer posts bridge
// messages and scheme requests; the host answers with scripts to evaluate,
// scheme responses and permission prompts that the renderer's UI must
// decide.
//
// Message Types (Client → Server):
//   - bridge: a bridge message, as an object or a JSON string
//   - decision: the answer to a prompt
//   - asset: a scheme request for a path of the mini-app
//   - cancel_asset: stop a pending scheme request
//   - ping: keep-alive ping
//
// Message Types (Server → Client):
//   - ready: the instance is live, with its scheme
//   - script: JavaScript to evaluate in the mini-app
//   - prompt: a permission prompt awaiting a decision
//   - asset: a resolved scheme response; unresolved requests get none
//     until the client cancels them
//   - pong, error
//
// Example Usage:
//
//	handler := ws.NewHandler(deps, logger)
//	router.GET("/stream/:appId", handler.HandleConnection)
package ws
