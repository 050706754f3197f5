// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports). The engine and the ingestion pipeline
// depend exclusively on these contracts, never on concrete vendors.
package driven
