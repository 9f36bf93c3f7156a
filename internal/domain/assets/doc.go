// Package assets owns the on-disk cache of mini-app bundles.
//
// Layout:
//
//	<root>/<appId>/<versionId>/...   one directory per installed version
//	<root>/<appId>/.current          name of the promoted version
//
// A version directory is populated first and only then promoted. Promotion
// replaces the marker with a rename, so readers see either the old or the
// new version and never a partial one. Older versions are purged after the
// marker moves.
//
// Every path handed to the store is a local relative path; writes go through
// an os.Root opened on the version directory, so neither ".." segments nor
// symlinks can leave it.
package assets
