// Package log builds slog loggers whose output never carries secrets.
//
// ICAP servers usually sit behind a proxy that forwards the end user's
// identity (X-Authenticated-User, X-Client-IP), and server profiles may
// name a SOCKS proxy with a password. SecureHandler masks such attributes
// by key, and string values that look like tokens, keys or URLs with
// credentials, before any handler writes them.
//
// Sample digests and ISTag values are exempt from value matching so they
// stay visible in scan logs.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Warn("icap attempt failed",
//	    "host", "av.example:1344",
//	    "x-client-ip", "10.0.0.7", // masked
//	)
package log
