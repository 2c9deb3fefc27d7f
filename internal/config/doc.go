// Package config loads broker configuration from TOML or YAML files with
// environment overrides, and watches the file for changes.
//
// Precedence, lowest first: Default, the config file, DATABROKER_*
// environment variables. Nested sections map to underscored names, for
// example DATABROKER_LOGGING_LEVEL or DATABROKER_BROKER_DISPATCH_IDLE.
//
// Example file:
//
//	[broker]
//	dispatch_idle = "100ms"
//	realtime_interval = "10ms"
//
//	[logging]
//	level = "debug"
//
//	[metrics]
//	enabled = true
//	addr = ":9102"
//
//	[console]
//	messages = true
//	watch = ["robot/*"]
//
//	[[scripts]]
//	path = "scripts/pose.lua"
//	role = "producer"
//	group = "robot"
//	name = "pose"
//	timer = "_REALTIME_"
//	period = 100
package config
