// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
	"github.com/luxfi/ids"
	"github.com/luxfi/utils"
	"gopkg.in/yaml.v3"

	"github.com/luxfi/lean/crypto/leansig"
	"github.com/luxfi/lean/types"
)

const registryFileMode = 0o644

// Record is one entry of the registry file: the genesis form of a validator.
// Runtime status lives in chain state, not in the file.
type Record struct {
	Index           uint64 `yaml:"index"`
	NodeID          string `yaml:"node_id,omitempty"`
	PublicKey       string `yaml:"public_key"`
	Balance         uint64 `yaml:"balance"`
	ActivationEpoch uint64 `yaml:"activation_epoch"`
}

// File is the parsed registry file.
type File struct {
	Validators []Record `yaml:"validators"`
}

// LoadFile reads a registry file and builds the genesis snapshot. Records
// may appear in any order; indices must still be contiguous from zero.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	vdrs := make([]*types.Validator, len(file.Validators))
	for i, rec := range file.Validators {
		vdr, err := rec.validator()
		if err != nil {
			return nil, fmt.Errorf("registry record %d: %w", i, err)
		}
		vdrs[i] = vdr
	}
	utils.Sort(vdrs)
	return NewRegistry(vdrs)
}

// WriteFile writes the registry file atomically.
func WriteFile(path string, records []Record) error {
	data, err := yaml.Marshal(&File{Validators: records})
	if err != nil {
		return fmt.Errorf("serialize registry: %w", err)
	}
	if err := renameio.WriteFile(path, data, registryFileMode); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

func (r *Record) validator() (*types.Validator, error) {
	pkBytes, err := hex.DecodeString(r.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(pkBytes) != leansig.PublicKeyLen {
		return nil, fmt.Errorf("public key is %d bytes, expected %d",
			len(pkBytes), leansig.PublicKeyLen)
	}

	var nodeID ids.NodeID
	if r.NodeID != "" {
		nodeID, err = ids.NodeIDFromString(r.NodeID)
		if err != nil {
			return nil, fmt.Errorf("decode node ID: %w", err)
		}
	}

	status := types.StatusPending
	if r.ActivationEpoch == 0 {
		status = types.StatusActive
	}

	vdr := &types.Validator{
		Index:            r.Index,
		NodeID:           nodeID,
		EffectiveBalance: r.Balance,
		Status:           status,
		ActivationEpoch:  types.Epoch(r.ActivationEpoch),
		ExitEpoch:        types.FarFutureEpoch,
	}
	copy(vdr.PublicKey[:], pkBytes)
	return vdr, nil
}

// NewRecord builds the file form of a genesis validator.
func NewRecord(index uint64, nodeID ids.NodeID, publicKey [leansig.PublicKeyLen]byte, balance uint64, activationEpoch types.Epoch) Record {
	rec := Record{
		Index:           index,
		PublicKey:       hex.EncodeToString(publicKey[:]),
		Balance:         balance,
		ActivationEpoch: uint64(activationEpoch),
	}
	if nodeID != ids.EmptyNodeID {
		rec.NodeID = nodeID.String()
	}
	return rec
}
