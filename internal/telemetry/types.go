// Package telemetry builds the stack-emission telemetry document.
// Values are carried as strings end to end; the ingestion service expects
// string-typed readings.
package telemetry

import "errors"

// TimeLayout is the layout of the record's time field (HH:MM:SS).
const TimeLayout = "15:04:05"

// DefaultTimezone is the zone the ingestion service reports in.
const DefaultTimezone = "Asia/Kolkata"

// ErrEmptyStacks is returned by Encode for a record without readings.
var ErrEmptyStacks = errors.New("telemetry: record has no stacks")

// Record is one telemetry snapshot. Field order is the wire order.
type Record struct {
	ProductID string         `json:"product_id"`
	UserName  string         `json:"userName"`
	Stacks    []StackReading `json:"stacks"`
	Time      string         `json:"time"`
}

// StackReading holds the readings of a single stack.
type StackReading struct {
	StackName         string `json:"stackName" yaml:"stack_name"`
	PH                string `json:"ph" yaml:"ph"`
	TotalizerFlow     string `json:"Totalizer_Flow" yaml:"totalizer_flow"`
	AmmonicalNitrogen string `json:"ammonicalNitrogen" yaml:"ammonical_nitrogen"`
	Fluoride          string `json:"Fluoride" yaml:"fluoride"`
}

// Builder produces the record for the current cycle.
type Builder interface {
	BuildRecord() Record
}
