// Package logging builds the host's zap logger.
//
// Production writes JSON to stderr; development writes colored console
// lines. Components receive a *zap.Logger and derive named children
// ("bridge", "scheme", "platform") so every entry carries its component,
// plus the app_id field wherever a mini-app is involved. SetLevel changes
// the level at runtime.
//
//	logger := logging.NewDefault()
//	defer logger.Close()
//	logger.ForApp("bridge", appID).Info("Session opened", zap.String("session_id", sid))
package logging
