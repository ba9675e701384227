// Package constants provides shared constants used throughout the meterwatch
// codebase. This includes timeouts, limits, catalog naming, and other values
// that should be consistent across the application.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for HTTP requests to the catalog
	DefaultHTTPTimeout = 30 * time.Second

	// PartitionQueryTimeout is the default timeout for a single partition query
	PartitionQueryTimeout = 2 * time.Minute

	// MetadataLoadTimeout is the timeout for loading one metadata dataset
	MetadataLoadTimeout = 5 * time.Minute

	// RunTimeout is the overall timeout for a full reconciliation run
	RunTimeout = 4 * time.Hour

	// RetryBackoff is the base backoff duration for retries
	RetryBackoff = 1 * time.Second

	// MaxRetryBackoff is the maximum backoff duration for retries
	MaxRetryBackoff = 30 * time.Second
)

// Limit constants define various limits and capacities
const (
	// MaxRetries is the maximum number of attempts for a failed partition query
	MaxRetries = 3

	// MaxPartitionQueries is the default bound on concurrent partition
	// queries for one device
	MaxPartitionQueries = 8

	// MaxConcurrentDevices is the default bound on devices evaluated in parallel
	MaxConcurrentDevices = 4

	// CatalogChunkSize is the page size for chunked datastore reads
	CatalogChunkSize = 50000
)

// Catalog naming constants identify the datasets this system consumes
const (
	// MetadataPackage is the catalog package holding asset metadata
	MetadataPackage = "planonmetadata"

	// MeterMetadataName is the metadata resource for meters and sensors
	MeterMetadataName = "Planon metadata - Meters Sensors"

	// LoggerMetadataName is the metadata resource for loggers and controllers
	LoggerMetadataName = "Planon metadata - Loggers Controllers"

	// BMSPackage is the catalog package holding BMS reading partitions
	BMSPackage = "bms"

	// EMSPackage is the catalog package holding EMS reading partitions
	EMSPackage = "ems"

	// BMSClassificationGroup marks metadata records sourced from the BMS
	BMSClassificationGroup = "Energy sensor"

	// EMSClassificationGroup marks metadata records sourced from the EMS
	EMSClassificationGroup = "Energy meter"
)

// Quality rule defaults
const (
	// StaleReadingWindow is how old the newest reading may be before the
	// device counts as stale
	StaleReadingWindow = 48 * time.Hour

	// DefaultScheduleTime is the local time of day for scheduled incremental runs
	DefaultScheduleTime = "08:00"
)

// Format constants
const (
	// TimeFormatReading is the timestamp layout used in catalog reading rows
	TimeFormatReading = "2006-01-02T15:04:05"

	// TimeFormatPartition is the month-year layout embedded in partition
	// names; matching is case-insensitive so "bms-jan-2017" parses.
	TimeFormatPartition = "Jan-2006"
)
