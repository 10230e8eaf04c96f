// Package config loads runtime configuration for the revsearch CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with --config. YAML is expected; JSON
//     files are accepted too since JSON is valid YAML.
//  3. Environment variables prefixed with REVSEARCH_. The rest of the name
//     is the key with dots replaced by underscores, e.g.
//     REVSEARCH_SEARCH_POLL_INTERVAL=2s or REVSEARCH_STORAGE_S3_BUCKET=img.
//  4. Command-line flags (see Flags), which override earlier values.
//
// Durations are Go duration strings ("1s", "3m"). Lists given through the
// environment are comma separated.
//
// Example file:
//
//	server:
//	  base_url: https://api.revsearch.example
//	search:
//	  engines: [google, yandex, bing]
//	  poll_interval: 1s
//	  max_poll_attempts: 120
//	  poll_timeout: 3m
//	storage:
//	  artifacts: fs
package config
