// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package json

import (
	"net/http"
	"strings"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

var _ rpc.Codec = codec{}

// NewCodec returns a JSON-RPC 2.0 codec that accepts lowercased method
// names, so callers write "lean.getHead" against the exported GetHead.
func NewCodec() rpc.Codec {
	return codec{json2.NewCodec()}
}

type codec struct {
	*json2.Codec
}

func (c codec) NewRequest(r *http.Request) rpc.CodecRequest {
	return requestParser{c.Codec.NewRequest(r)}
}

type requestParser struct {
	rpc.CodecRequest
}

func (p requestParser) Method() (string, error) {
	method, err := p.CodecRequest.Method()
	if err != nil {
		return "", err
	}
	service, name, found := strings.Cut(method, ".")
	if !found || name == "" {
		return method, nil
	}
	return service + "." + strings.ToUpper(name[:1]) + name[1:], nil
}
