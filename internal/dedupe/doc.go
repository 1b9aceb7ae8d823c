// Package dedupe drops redelivered socket messages by ID within a time window.
package dedupe
