// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api serves the lean JSON-RPC namespace.
package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/rpc/v2"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/version"

	"github.com/luxfi/lean/forkchoice"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/utils/json"
)

// Version of the lean client.
var Version = &version.Semantic{
	Major: 1,
	Minor: 0,
	Patch: 0,
}

var (
	errNoBlockQuery     = errors.New("request must name a root or a slot")
	errUnknownValidator = errors.New("unknown validator index")
)

// Submitter publishes RPC-submitted messages to the local node and gossip.
type Submitter interface {
	IssueAttestation(*types.SignedAttestation) error
	IssueExit(*types.SignedVoluntaryExit) error
}

// Service is the lean JSON-RPC handler backing /ext/lean.
type Service struct {
	log       log.Logger
	store     *forkchoice.Store
	submitter Submitter
}

func NewService(logger log.Logger, store *forkchoice.Store, submitter Submitter) *Service {
	return &Service{
		log:       logger,
		store:     store,
		submitter: submitter,
	}
}

// NewHandler wraps the service in a gorilla JSON-RPC 2.0 server.
func NewHandler(logger log.Logger, store *forkchoice.Store, submitter Submitter) (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json.NewCodec(), "application/json")
	server.RegisterCodec(json.NewCodec(), "application/json;charset=UTF-8")
	if err := server.RegisterService(NewService(logger, store, submitter), "lean"); err != nil {
		return nil, fmt.Errorf("failed to register lean service: %w", err)
	}
	return server, nil
}

type HealthReply struct {
	Healthy bool `json:"healthy"`
}

// Health is a trivial liveness probe over the RPC surface.
func (s *Service) Health(_ *http.Request, _ *struct{}, reply *HealthReply) error {
	s.log.Debug("API called", log.String("service", "lean"), log.String("method", "health"))
	reply.Healthy = true
	return nil
}

type GetNodeVersionReply struct {
	Version string `json:"version"`
}

func (s *Service) GetNodeVersion(_ *http.Request, _ *struct{}, reply *GetNodeVersionReply) error {
	reply.Version = Version.String()
	return nil
}

// Checkpoint is the JSON view of a root/slot pair.
type Checkpoint struct {
	Root ids.ID      `json:"root"`
	Slot json.Uint64 `json:"slot"`
}

func checkpointOf(cp types.Checkpoint) Checkpoint {
	return Checkpoint{Root: cp.Root, Slot: json.Uint64(cp.Slot)}
}

type GetHeadReply struct {
	Head Checkpoint  `json:"head"`
	Slot json.Uint64 `json:"currentSlot"`
}

func (s *Service) GetHead(_ *http.Request, _ *struct{}, reply *GetHeadReply) error {
	reply.Head = checkpointOf(s.store.Head())
	reply.Slot = json.Uint64(s.store.CurrentSlot())
	return nil
}

type GetCheckpointsReply struct {
	Justified  Checkpoint `json:"justified"`
	Finalized  Checkpoint `json:"finalized"`
	SafeTarget Checkpoint `json:"safeTarget"`
}

func (s *Service) GetCheckpoints(_ *http.Request, _ *struct{}, reply *GetCheckpointsReply) error {
	reply.Justified = checkpointOf(s.store.Justified())
	reply.Finalized = checkpointOf(s.store.Finalized())
	reply.SafeTarget = checkpointOf(s.store.SafeTarget())
	return nil
}

type GetBlockArgs struct {
	// Exactly one of Root or Slot selects the block; Root wins when both
	// are set.
	Root *ids.ID      `json:"root"`
	Slot *json.Uint64 `json:"slot"`
}

type GetBlockReply struct {
	Root  ids.ID             `json:"root"`
	Block *types.SignedBlock `json:"block"`
}

func (s *Service) GetBlock(_ *http.Request, args *GetBlockArgs, reply *GetBlockReply) error {
	var root ids.ID
	switch {
	case args.Root != nil:
		root = *args.Root
	case args.Slot != nil:
		var ok bool
		root, ok = s.store.BlockAtSlot(types.Slot(*args.Slot))
		if !ok {
			return fmt.Errorf("%w: no block at slot %d", forkchoice.ErrUnknownBlock, *args.Slot)
		}
	default:
		return errNoBlockQuery
	}

	block, err := s.store.GetBlock(root)
	if err != nil {
		return err
	}
	reply.Root = root
	reply.Block = block
	return nil
}

type GetValidatorArgs struct {
	Index json.Uint64 `json:"index"`
}

type GetValidatorReply struct {
	Index            json.Uint64 `json:"index"`
	PublicKey        string      `json:"publicKey"`
	EffectiveBalance json.Uint64 `json:"effectiveBalance"`
	Status           string      `json:"status"`
	ActivationEpoch  json.Uint64 `json:"activationEpoch"`
	ExitEpoch        json.Uint64 `json:"exitEpoch"`
}

func (s *Service) GetValidator(_ *http.Request, args *GetValidatorArgs, reply *GetValidatorReply) error {
	headState, err := s.store.HeadState()
	if err != nil {
		return err
	}
	registry, err := headState.Registry()
	if err != nil {
		return err
	}
	vdr, ok := registry.Lookup(uint64(args.Index))
	if !ok {
		return fmt.Errorf("%w: %d", errUnknownValidator, args.Index)
	}

	reply.Index = json.Uint64(vdr.Index)
	reply.PublicKey = hex.EncodeToString(vdr.PublicKey[:])
	reply.EffectiveBalance = json.Uint64(vdr.EffectiveBalance)
	reply.Status = vdr.Status.String()
	reply.ActivationEpoch = json.Uint64(vdr.ActivationEpoch)
	reply.ExitEpoch = json.Uint64(vdr.ExitEpoch)
	return nil
}

type ForkNode struct {
	Root   ids.ID      `json:"root"`
	Parent ids.ID      `json:"parent"`
	Slot   json.Uint64 `json:"slot"`
	Weight json.Uint64 `json:"weight"`
	Head   bool        `json:"head"`
}

type GetForkNodesReply struct {
	Nodes []ForkNode `json:"nodes"`
}

func (s *Service) GetForkNodes(_ *http.Request, _ *struct{}, reply *GetForkNodesReply) error {
	nodes, err := s.store.ForkNodes()
	if err != nil {
		return err
	}
	reply.Nodes = make([]ForkNode, len(nodes))
	for i, n := range nodes {
		reply.Nodes[i] = ForkNode{
			Root:   n.Root,
			Parent: n.Parent,
			Slot:   json.Uint64(n.Slot),
			Weight: json.Uint64(n.Weight),
			Head:   n.Head,
		}
	}
	return nil
}

type SubmitArgs struct {
	// Data is the hex-encoded codec serialization of the message.
	Data string `json:"data"`
}

type SubmitReply struct {
	ID ids.ID `json:"id"`
}

func (s *Service) SubmitExit(_ *http.Request, args *SubmitArgs, reply *SubmitReply) error {
	raw, err := hex.DecodeString(args.Data)
	if err != nil {
		return fmt.Errorf("bad exit payload: %w", err)
	}
	exit, err := types.ParseSignedVoluntaryExit(raw)
	if err != nil {
		return fmt.Errorf("bad exit payload: %w", err)
	}
	if err := s.submitter.IssueExit(exit); err != nil {
		return err
	}
	id, err := types.Root(exit)
	if err != nil {
		return err
	}
	s.log.Info("exit submitted over RPC",
		log.Uint64("validator", exit.ValidatorIndex),
		log.Uint64("epoch", uint64(exit.Epoch)),
	)
	reply.ID = id
	return nil
}

func (s *Service) SubmitAttestation(_ *http.Request, args *SubmitArgs, reply *SubmitReply) error {
	raw, err := hex.DecodeString(args.Data)
	if err != nil {
		return fmt.Errorf("bad attestation payload: %w", err)
	}
	att, err := types.ParseSignedAttestation(raw)
	if err != nil {
		return fmt.Errorf("bad attestation payload: %w", err)
	}
	if err := s.submitter.IssueAttestation(att); err != nil {
		return err
	}
	id, err := types.Root(att)
	if err != nil {
		return err
	}
	reply.ID = id
	return nil
}
