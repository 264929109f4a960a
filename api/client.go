// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/luxfi/ids"

	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/utils/json"
	"github.com/luxfi/lean/utils/rpc"
)

// Endpoint is the path the lean JSON-RPC namespace is served on.
const Endpoint = "/ext/lean"

// Client talks to a lean node's JSON-RPC surface.
type Client struct {
	uri *url.URL
}

// NewClient builds a client against [base], e.g. "http://127.0.0.1:9630".
func NewClient(base string) (*Client, error) {
	uri, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("bad endpoint %q: %w", base, err)
	}
	uri.Path = Endpoint
	return &Client{uri: uri}, nil
}

func (c *Client) Health(ctx context.Context) (bool, error) {
	reply := &HealthReply{}
	err := rpc.SendJSONRequest(ctx, c.uri, "lean.health", &struct{}{}, reply)
	return reply.Healthy, err
}

func (c *Client) GetNodeVersion(ctx context.Context) (string, error) {
	reply := &GetNodeVersionReply{}
	err := rpc.SendJSONRequest(ctx, c.uri, "lean.getNodeVersion", &struct{}{}, reply)
	return reply.Version, err
}

func (c *Client) GetHead(ctx context.Context) (*GetHeadReply, error) {
	reply := &GetHeadReply{}
	err := rpc.SendJSONRequest(ctx, c.uri, "lean.getHead", &struct{}{}, reply)
	return reply, err
}

func (c *Client) GetCheckpoints(ctx context.Context) (*GetCheckpointsReply, error) {
	reply := &GetCheckpointsReply{}
	err := rpc.SendJSONRequest(ctx, c.uri, "lean.getCheckpoints", &struct{}{}, reply)
	return reply, err
}

func (c *Client) GetBlockByRoot(ctx context.Context, root ids.ID) (*GetBlockReply, error) {
	reply := &GetBlockReply{}
	err := rpc.SendJSONRequest(ctx, c.uri, "lean.getBlock", &GetBlockArgs{Root: &root}, reply)
	return reply, err
}

func (c *Client) GetBlockBySlot(ctx context.Context, slot types.Slot) (*GetBlockReply, error) {
	jsonSlot := json.Uint64(slot)
	reply := &GetBlockReply{}
	err := rpc.SendJSONRequest(ctx, c.uri, "lean.getBlock", &GetBlockArgs{Slot: &jsonSlot}, reply)
	return reply, err
}

func (c *Client) GetValidator(ctx context.Context, index uint64) (*GetValidatorReply, error) {
	reply := &GetValidatorReply{}
	err := rpc.SendJSONRequest(ctx, c.uri, "lean.getValidator", &GetValidatorArgs{
		Index: json.Uint64(index),
	}, reply)
	return reply, err
}

func (c *Client) GetForkNodes(ctx context.Context) ([]ForkNode, error) {
	reply := &GetForkNodesReply{}
	err := rpc.SendJSONRequest(ctx, c.uri, "lean.getForkNodes", &struct{}{}, reply)
	return reply.Nodes, err
}

func (c *Client) SubmitExit(ctx context.Context, exit *types.SignedVoluntaryExit) (ids.ID, error) {
	raw, err := types.Codec.Marshal(types.CodecVersion, exit)
	if err != nil {
		return ids.Empty, err
	}
	reply := &SubmitReply{}
	err = rpc.SendJSONRequest(ctx, c.uri, "lean.submitExit", &SubmitArgs{
		Data: hex.EncodeToString(raw),
	}, reply)
	return reply.ID, err
}

func (c *Client) SubmitAttestation(ctx context.Context, att *types.SignedAttestation) (ids.ID, error) {
	raw, err := types.Codec.Marshal(types.CodecVersion, att)
	if err != nil {
		return ids.Empty, err
	}
	reply := &SubmitReply{}
	err = rpc.SendJSONRequest(ctx, c.uri, "lean.submitAttestation", &SubmitArgs{
		Data: hex.EncodeToString(raw),
	}, reply)
	return reply.ID, err
}
