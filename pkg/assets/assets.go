// Package assets defines the building-energy asset model and the metadata
// store loaded from the remote catalog at the start of each run.
package assets

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/meterwatch/meterwatch/pkg/constants"
	"github.com/meterwatch/meterwatch/pkg/errors"
)

// Kind distinguishes the two hardware families in the estate metadata.
type Kind string

// Asset kinds.
const (
	KindLogger Kind = "logger"
	KindMeter  Kind = "meter"
)

// Classification names the source family a meter's readings live in.
// The two families use disjoint partition naming schemes and are never mixed.
type Classification string

// Classification groups.
const (
	ClassificationBMS     Classification = "bms"
	ClassificationEMS     Classification = "ems"
	ClassificationUnknown Classification = ""
)

// Metadata column names as they appear in catalog resources.
const (
	fieldLoggerSerial   = "Logger Serial Number"
	fieldLoggerAssetRef = "Logger Asset Code"
	fieldLoggerChannel  = "Logger Channel"
	fieldAssetCode      = "Asset Code"
	fieldBuildingCode   = "Building Code"
	fieldBuildingName   = "Building Name"
	fieldDescription    = "Description"
	fieldClassification = "Classification Group"
	fieldUtilityType    = "Utility Type"
)

var utilityCaser = cases.Title(language.English)

// Asset is one logger/controller or meter/sensor record from the estate
// metadata. Immutable for the duration of a run.
type Asset struct {
	Kind           Kind
	IdentityCode   string // logger serial number; for meters, the owning logger's code
	Channel        string // meters only
	AssetCode      string // meters only
	BuildingCode   string // loggers only
	BuildingName   string
	Description    string
	Classification Classification
	UtilityType    string
}

// Identity returns the join key between metadata and readings:
// the identity code for loggers, code/channel for meters.
func (a Asset) Identity() string {
	if a.Kind == KindMeter && a.Channel != "" {
		return a.IdentityCode + "/" + a.Channel
	}
	return a.IdentityCode
}

// Testable reports whether the asset carries enough identity to query
// readings for it. Only meters produce readings.
func (a Asset) Testable() bool {
	return a.CheckTestable() == nil
}

// CheckTestable reports why an asset cannot be evaluated, or nil for a
// testable meter. The error satisfies errors.IsUntestable.
func (a Asset) CheckTestable() error {
	switch {
	case a.Kind != KindMeter:
		return &errors.UntestableError{IdentityCode: a.IdentityCode, Reason: "only meters produce readings"}
	case a.IdentityCode == "":
		return &errors.UntestableError{Reason: "no logger asset code"}
	case a.Channel == "":
		return &errors.UntestableError{IdentityCode: a.IdentityCode, Reason: "no logger channel"}
	case a.Classification == ClassificationUnknown:
		return &errors.UntestableError{IdentityCode: a.IdentityCode, Reason: "unknown classification group"}
	}
	return nil
}

// LoggerFromRow builds a logger asset from a metadata row.
func LoggerFromRow(row map[string]string) Asset {
	return Asset{
		Kind:         KindLogger,
		IdentityCode: strings.TrimSpace(row[fieldLoggerSerial]),
		BuildingCode: strings.TrimSpace(row[fieldBuildingCode]),
		BuildingName: strings.TrimSpace(row[fieldBuildingName]),
		Description:  strings.TrimSpace(row[fieldDescription]),
	}
}

// MeterFromRow builds a meter asset from a metadata row.
func MeterFromRow(row map[string]string) Asset {
	return Asset{
		Kind:           KindMeter,
		IdentityCode:   strings.TrimSpace(row[fieldLoggerAssetRef]),
		Channel:        strings.TrimSpace(row[fieldLoggerChannel]),
		AssetCode:      strings.TrimSpace(row[fieldAssetCode]),
		Description:    strings.TrimSpace(row[fieldDescription]),
		Classification: classify(row[fieldClassification]),
		UtilityType:    NormalizeUtilityType(row[fieldUtilityType]),
	}
}

// classify maps a metadata classification group onto a partition family.
func classify(group string) Classification {
	switch strings.TrimSpace(group) {
	case constants.BMSClassificationGroup:
		return ClassificationBMS
	case constants.EMSClassificationGroup:
		return ClassificationEMS
	default:
		return ClassificationUnknown
	}
}

// NormalizeUtilityType canonicalizes the free-text utility type so rule
// profiles keyed by utility match regardless of metadata casing.
func NormalizeUtilityType(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return utilityCaser.String(strings.ToLower(s))
}
