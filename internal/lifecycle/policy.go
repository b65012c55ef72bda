// Package lifecycle holds the status graphs of listings, pickup requests and
// transactions together with the settlement and rating arithmetic.
package lifecycle

import (
	"fmt"
	"sort"

	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
)

// Status is any of the closed status enums stored on entities.
type Status interface {
	~string
}

// Policy enforces a fixed transition graph. States missing from the graph are
// terminal.
type Policy[S Status] struct {
	name  string
	graph map[S]map[S]struct{}
}

func NewPolicy[S Status](name string, graph map[S][]S) *Policy[S] {
	internal := make(map[S]map[S]struct{}, len(graph))
	for from, targets := range graph {
		set := make(map[S]struct{}, len(targets))
		for _, to := range targets {
			if to == "" {
				continue
			}
			set[to] = struct{}{}
		}
		internal[from] = set
	}
	return &Policy[S]{name: name, graph: internal}
}

// Validate returns an error wrapping apperror.ErrInvalidTransition when target
// is not reachable from current.
func (p *Policy[S]) Validate(current, target S) error {
	if p.Allowed(current, target) {
		return nil
	}
	if p.Terminal(current) {
		return fmt.Errorf("%s is already %s: %w", p.name, current, apperror.ErrInvalidTransition)
	}
	return fmt.Errorf("%s cannot move from %q to %q, expected one of %v: %w",
		p.name, current, target, p.AllowedTargets(current), apperror.ErrInvalidTransition)
}

func (p *Policy[S]) Allowed(current, target S) bool {
	_, ok := p.graph[current][target]
	return ok
}

// AllowedTargets returns the valid targets from current in sorted order.
func (p *Policy[S]) AllowedTargets(current S) []S {
	targets := p.graph[current]
	if len(targets) == 0 {
		return nil
	}
	out := make([]S, 0, len(targets))
	for target := range targets {
		out = append(out, target)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Terminal reports whether no transition leaves current.
func (p *Policy[S]) Terminal(current S) bool {
	return len(p.graph[current]) == 0
}

var (
	Listings = NewPolicy("listing", map[entity.ListingStatus][]entity.ListingStatus{
		entity.ListingStatusOpen:    {entity.ListingStatusClaimed, entity.ListingStatusCancelled},
		entity.ListingStatusClaimed: {entity.ListingStatusCompleted, entity.ListingStatusCancelled, entity.ListingStatusOpen},
	})

	PickupRequests = NewPolicy("pickup request", map[entity.PickupRequestStatus][]entity.PickupRequestStatus{
		entity.PickupRequestStatusPending:  {entity.PickupRequestStatusAccepted, entity.PickupRequestStatusRejected, entity.PickupRequestStatusCancelled},
		entity.PickupRequestStatusAccepted: {entity.PickupRequestStatusCompleted, entity.PickupRequestStatusCancelled},
	})

	Transactions = NewPolicy("transaction", map[entity.TransactionStatus][]entity.TransactionStatus{
		entity.TransactionStatusPending: {entity.TransactionStatusCompleted},
	})
)
