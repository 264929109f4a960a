// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validators tracks the validator registry. A Registry is an
// immutable snapshot: mutations return a new snapshot and never disturb
// concurrent readers of older ones.
package validators

import (
	"errors"
	"fmt"

	safemath "github.com/luxfi/math"

	"github.com/luxfi/lean/types"
)

var (
	ErrUnknownValidator = errors.New("unknown validator")
	ErrAlreadyExited    = errors.New("validator already exited")
	ErrNotYetEligible   = errors.New("validator not yet eligible to exit")

	errNoValidators       = errors.New("registry has no validators")
	errNonContiguousIndex = errors.New("validator indices must be contiguous from zero")
)

// Rules are the registry's exit-eligibility parameters.
type Rules struct {
	// MinActiveEpochs is the minimum number of epochs a validator must have
	// been active before it may request an exit.
	MinActiveEpochs uint64

	// ExitDelayEpochs is how long after a successful exit request the
	// validator keeps attesting.
	ExitDelayEpochs uint64
}

// Registry is an immutable snapshot of validator records, indexed 0..n-1.
type Registry struct {
	validators []*types.Validator
}

// NewRegistry builds a snapshot from [vdrs]. Records must carry contiguous
// indices starting at zero; position and index always agree.
func NewRegistry(vdrs []*types.Validator) (*Registry, error) {
	if len(vdrs) == 0 {
		return nil, errNoValidators
	}
	for i, vdr := range vdrs {
		if err := vdr.Verify(); err != nil {
			return nil, fmt.Errorf("validator %d: %w", i, err)
		}
		if vdr.Index != uint64(i) {
			return nil, fmt.Errorf("%w: position %d holds index %d",
				errNonContiguousIndex, i, vdr.Index)
		}
	}
	return &Registry{validators: vdrs}, nil
}

// Len is the total number of records, active or not.
func (r *Registry) Len() int {
	return len(r.validators)
}

// Validators exposes the backing slice. Callers must not mutate it.
func (r *Registry) Validators() []*types.Validator {
	return r.validators
}

// Lookup returns the record for [index].
func (r *Registry) Lookup(index uint64) (*types.Validator, bool) {
	if index >= uint64(len(r.validators)) {
		return nil, false
	}
	return r.validators[index], true
}

// EffectiveBalance returns the weight [index] carries in fork choice and
// justification tallies.
func (r *Registry) EffectiveBalance(index uint64) (uint64, bool) {
	vdr, ok := r.Lookup(index)
	if !ok {
		return 0, false
	}
	return vdr.EffectiveBalance, true
}

// IsActive reports whether [index] participates in consensus at [epoch].
func (r *Registry) IsActive(index uint64, epoch types.Epoch) bool {
	vdr, ok := r.Lookup(index)
	return ok && vdr.IsActive(epoch)
}

// ActiveIndices lists the validators participating at [epoch], ascending.
func (r *Registry) ActiveIndices(epoch types.Epoch) []uint64 {
	out := make([]uint64, 0, len(r.validators))
	for _, vdr := range r.validators {
		if vdr.IsActive(epoch) {
			out = append(out, vdr.Index)
		}
	}
	return out
}

// ActiveBalance sums the effective balance of every active validator at
// [epoch]. The sum is overflow-checked.
func (r *Registry) ActiveBalance(epoch types.Epoch) (uint64, error) {
	var (
		total uint64
		err   error
	)
	for _, vdr := range r.validators {
		if !vdr.IsActive(epoch) {
			continue
		}
		total, err = safemath.Add(total, vdr.EffectiveBalance)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// ApplyExit applies a voluntary exit at [epoch] and returns the resulting
// snapshot. The receiver is never modified. Checks run in a fixed order so
// the first failure is deterministic:
//   - unknown index: ErrUnknownValidator
//   - already exiting, exited or slashed: ErrAlreadyExited
//   - pending, too young, or an exit dated in the future: ErrNotYetEligible
func (r *Registry) ApplyExit(exit *types.VoluntaryExit, epoch types.Epoch, rules Rules) (*Registry, error) {
	vdr, ok := r.Lookup(exit.ValidatorIndex)
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownValidator, exit.ValidatorIndex)
	}

	switch vdr.Status {
	case types.StatusExiting, types.StatusExited, types.StatusSlashed:
		return nil, fmt.Errorf("%w: index %d is %s", ErrAlreadyExited, vdr.Index, vdr.Status)
	case types.StatusPending:
		return nil, fmt.Errorf("%w: index %d is pending", ErrNotYetEligible, vdr.Index)
	}
	if exit.Epoch > epoch {
		return nil, fmt.Errorf("%w: exit dated for epoch %d at epoch %d",
			ErrNotYetEligible, exit.Epoch, epoch)
	}
	if earliest := vdr.ActivationEpoch + types.Epoch(rules.MinActiveEpochs); epoch < earliest {
		return nil, fmt.Errorf("%w: index %d active since epoch %d, may exit at epoch %d",
			ErrNotYetEligible, vdr.Index, vdr.ActivationEpoch, earliest)
	}

	updated := *vdr
	updated.Status = types.StatusExiting
	updated.ExitEpoch = epoch + types.Epoch(rules.ExitDelayEpochs)

	vdrs := make([]*types.Validator, len(r.validators))
	copy(vdrs, r.validators)
	vdrs[exit.ValidatorIndex] = &updated
	return &Registry{validators: vdrs}, nil
}

// AdvanceEpoch applies status transitions due at [epoch]: Pending records
// activate at their activation epoch, Exiting records retire at their exit
// epoch. Returns the receiver unchanged when nothing is due.
func (r *Registry) AdvanceEpoch(epoch types.Epoch) *Registry {
	var vdrs []*types.Validator
	for i, vdr := range r.validators {
		var next types.ValidatorStatus
		switch {
		case vdr.Status == types.StatusPending && vdr.ActivationEpoch <= epoch:
			next = types.StatusActive
		case vdr.Status == types.StatusExiting && vdr.ExitEpoch <= epoch:
			next = types.StatusExited
		default:
			continue
		}

		if vdrs == nil {
			vdrs = make([]*types.Validator, len(r.validators))
			copy(vdrs, r.validators)
		}
		updated := *vdr
		updated.Status = next
		vdrs[i] = &updated
	}
	if vdrs == nil {
		return r
	}
	return &Registry{validators: vdrs}
}
