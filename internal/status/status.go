// Package status defines the allowed lifecycle transitions for tables,
// deliveries, riders and orders. Every status write in the API goes through
// Transition so illegal jumps are rejected the same way everywhere.
package status

import (
	"fmt"
	"time"

	"github.com/saffron-pos/api/internal/enum"
)

// Machine names a status lifecycle.
type Machine string

const (
	Table    Machine = "table"
	Delivery Machine = "delivery"
	Rider    Machine = "rider"
	Order    Machine = "order"
)

// DefaultLateThreshold is how long an open delivery may age before it is
// flagged late.
const DefaultLateThreshold = 30 * time.Minute

var transitions = map[Machine]map[string][]string{
	Table: {
		enum.TableStatusAvailable: {enum.TableStatusOccupied, enum.TableStatusReserved},
		enum.TableStatusReserved:  {enum.TableStatusOccupied, enum.TableStatusAvailable},
		enum.TableStatusOccupied:  {enum.TableStatusBilling, enum.TableStatusAvailable},
		enum.TableStatusBilling:   {enum.TableStatusAvailable},
	},
	Delivery: {
		enum.DeliveryStatusNew:        {enum.DeliveryStatusConfirmed, enum.DeliveryStatusCancelled},
		enum.DeliveryStatusConfirmed:  {enum.DeliveryStatusPreparing, enum.DeliveryStatusCancelled},
		enum.DeliveryStatusPreparing:  {enum.DeliveryStatusReady, enum.DeliveryStatusCancelled},
		enum.DeliveryStatusReady:      {enum.DeliveryStatusDispatched, enum.DeliveryStatusCancelled},
		enum.DeliveryStatusDispatched: {enum.DeliveryStatusDelivered},
	},
	Rider: {
		enum.RiderStatusOffline: {enum.RiderStatusOnline},
		enum.RiderStatusOnline:  {enum.RiderStatusOffline, enum.RiderStatusBusy},
		enum.RiderStatusBusy:    {enum.RiderStatusOnline},
	},
	Order: {
		enum.OrderStatusOpen: {enum.OrderStatusPaid, enum.OrderStatusCancelled},
	},
}

// RejectedError reports an illegal status jump.
type RejectedError struct {
	Machine Machine
	From    string
	To      string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("invalid %s status transition from %s to %s", e.Machine, e.From, e.To)
}

// UnknownStatusError reports a status value the machine does not define.
type UnknownStatusError struct {
	Machine Machine
	Status  string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown %s status %q", e.Machine, e.Status)
}

// Transition returns nil when m allows moving from current to next, an
// *UnknownStatusError when next is not a status of m, and a *RejectedError
// otherwise. Staying in the same status is rejected.
func Transition(m Machine, current, next string) error {
	if !IsValid(m, next) {
		return &UnknownStatusError{Machine: m, Status: next}
	}
	for _, s := range transitions[m][current] {
		if s == next {
			return nil
		}
	}
	return &RejectedError{Machine: m, From: current, To: next}
}

// Allowed returns the statuses reachable from current.
func Allowed(m Machine, current string) []string {
	next := transitions[m][current]
	out := make([]string, len(next))
	copy(out, next)
	return out
}

// IsValid reports whether s is a status of machine m.
func IsValid(m Machine, s string) bool {
	table, ok := transitions[m]
	if !ok {
		return false
	}
	if _, ok := table[s]; ok {
		return true
	}
	for _, targets := range table {
		for _, t := range targets {
			if t == s {
				return true
			}
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(m Machine, s string) bool {
	return IsValid(m, s) && len(transitions[m][s]) == 0
}

// IsLate reports whether a delivery created at createdAt is overdue at now.
// Finished deliveries are never late. A non-positive threshold uses
// DefaultLateThreshold.
func IsLate(deliveryStatus string, createdAt, now time.Time, threshold time.Duration) bool {
	if deliveryStatus == enum.DeliveryStatusDelivered || deliveryStatus == enum.DeliveryStatusCancelled {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultLateThreshold
	}
	return now.Sub(createdAt) > threshold
}
