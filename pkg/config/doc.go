// Package config loads application configuration from environment variables.
//
// All variables use the WARDEN_ prefix. Missing values fall back to sane
// defaults for local development (in-memory storage, no Redis, no S3), so a
// bare `warden` invocation starts a fully working server.
package config
