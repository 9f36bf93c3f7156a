/*
Command miniapp-host runs the mini-app host and its maintenance commands.

	miniapp-host serve                      start the HTTP and WebSocket server
	miniapp-host install <appId>            download and promote a version
	miniapp-host uninstall <appId>          remove cached files and manifest
	miniapp-host apps                       list installed mini-apps
	miniapp-host manifest show <appId>      print the cached manifest
	miniapp-host manifest stale <appId> <versionId>
	miniapp-host permissions get <appId>
	miniapp-host permissions set <appId> <name>=<STATUS>...
	miniapp-host exec <appId> <action> [param]

Configuration comes from MINIAPP_* environment variables, optionally
overridden by the file passed with --config.
*/
package main
