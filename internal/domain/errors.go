package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound is returned by the store when no record has the given id.
	ErrSourceNotFound = errors.New("source not found")
	// ErrLockHeld is returned when a record is no longer idle at acquire time.
	ErrLockHeld = errors.New("source is already being processed")
)

// FetchError wraps any failure to resolve a source's feed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AcquisitionKind classifies media acquisition failures.
type AcquisitionKind string

const (
	AcquisitionLiveInProgress AcquisitionKind = "live_in_progress"
	AcquisitionNotFound       AcquisitionKind = "not_found"
	AcquisitionTransient      AcquisitionKind = "transient"
	AcquisitionUnknown        AcquisitionKind = "unknown"
)

// AcquisitionError is returned by the media adapter for probe and extract failures.
type AcquisitionError struct {
	Kind   AcquisitionKind
	ItemID string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("acquire %s: %s", e.ItemID, e.Kind)
	}
	return fmt.Sprintf("acquire %s: %s: %v", e.ItemID, e.Kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// AcquisitionKindOf returns the kind carried by err, or AcquisitionUnknown.
func AcquisitionKindOf(err error) AcquisitionKind {
	var acqErr *AcquisitionError
	if errors.As(err, &acqErr) && acqErr.Kind != "" {
		return acqErr.Kind
	}
	return AcquisitionUnknown
}

// ErrPayloadTooLarge marks an artifact the destination refuses by size.
var ErrPayloadTooLarge = errors.New("payload too large")

// PublishError wraps a failed delivery.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish: %v", e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// StoreError wraps a record store failure during a processing run.
type StoreError struct {
	Op       string
	SourceID int64
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s source %d: %v", e.Op, e.SourceID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
