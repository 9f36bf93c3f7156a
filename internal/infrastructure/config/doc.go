// Package config loads host configuration from the environment, with an
// optional YAML or TOML file applied on top.
//
// Example Usage:
//
//	cfg, err := config.LoadFile(os.Getenv("MINIAPP_CONFIG"))
//	if err != nil {
//		log.Fatal(err)
//	}
package config
