// Package domain contains the core business entities for rules adjudication:
// parsed rulebooks, retrieval chunks, vector records, and verdicts.
// It has no dependencies on adapters or external services.
package domain
