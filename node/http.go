// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/luxfi/ids"
	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/luxfi/lean/api"
	leanjson "github.com/luxfi/lean/utils/json"
)

const (
	healthEndpoint  = "/ext/health"
	metricsEndpoint = "/ext/metrics"
	eventsEndpoint  = "/events"

	maxConcurrentStreams = 64
)

func (n *Node) newHTTPHandler(gatherer metric.MultiGatherer, nodeID ids.NodeID) (http.Handler, error) {
	leanHandler, err := api.NewHandler(n.log, n.store, n.network)
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	router.Handle(api.Endpoint, leanHandler)
	router.Handle(healthEndpoint, n.healthHandler())
	router.Handle(metricsEndpoint, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.Handle(eventsEndpoint, n.events)

	h := cors.New(cors.Options{
		AllowedOrigins:   n.nodeCfg.HTTP.AllowedOrigins,
		AllowCredentials: true,
	}).Handler(router)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Attach this node's ID as a header
		w.Header().Set("node-id", nodeID.String())
		h.ServeHTTP(w, r)
	})

	return h2c.NewHandler(handler, &http2.Server{
		MaxConcurrentStreams: maxConcurrentStreams,
	}), nil
}

type healthReply struct {
	Healthy       bool            `json:"healthy"`
	CurrentSlot   leanjson.Uint64 `json:"currentSlot"`
	HeadSlot      leanjson.Uint64 `json:"headSlot"`
	FinalizedSlot leanjson.Uint64 `json:"finalizedSlot"`
}

func (n *Node) healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := healthReply{
			Healthy:       true,
			CurrentSlot:   leanjson.Uint64(n.cfg.SlotAtTime(n.clock.Time())),
			HeadSlot:      leanjson.Uint64(n.store.Head().Slot),
			FinalizedSlot: leanjson.Uint64(n.store.Finalized().Slot),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reply); err != nil {
			n.log.Debug("health reply write failed")
		}
	})
}
