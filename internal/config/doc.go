// Package config provides configuration structures and utilities for icapscan.
// It defines the options for reaching an ICAP server, scanning samples and
// writing reports, and loads named server profiles from a YAML file.
package config
