/*
Package webview provides a headless renderer for mini-apps.

The renderer is a goja runtime with the MiniAppBridge JavaScript shim
preloaded. It stands in for a real web view when mini-apps are exercised
from the command line or from tests:

  - Outbound scripts (execSuccessCallback, execErrorCallback) are evaluated
    like a web view would, and each settlement is recorded as an Outcome.
  - Scripts that call MiniAppBridge.exec post bridge messages to the
    handler registered with OnMessage.
  - console output is captured.

Execution is bounded by a timeout and interrupted when it runs over. The
runtime strips the CommonJS globals and disables timers.

Example Usage:

	r, _ := webview.New(webview.DefaultConfig(), logger)
	r.OnMessage(channel.Receive)
	_, err := r.Run(ctx, `MiniAppBridge.exec("getUniqueId", null)`)
*/
package webview
