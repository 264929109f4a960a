// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics collects the node's consensus counters and gauges. The
// engine packages update these through plain method calls; exposition is
// the HTTP layer's problem.
package metrics

import (
	"github.com/luxfi/metric"

	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/utils/wrappers"
)

const (
	kindLabel     = "kind"
	decisionLabel = "decision"
)

type Metrics struct {
	headSlot    metric.Gauge
	headChanges metric.Counter

	justifiedSlot metric.Gauge
	finalizedSlot metric.Gauge

	blocksProcessed metric.Counter
	blocksRejected  metric.Counter
	blocksPruned    metric.Counter

	votesKnown metric.Counter
	votesNew   metric.Counter

	gossipDecisions metric.CounterVec

	pendingBlocks       metric.Gauge
	pendingAttestations metric.Gauge
	attestationPoolSize metric.Gauge
	exitPoolSize        metric.Gauge

	dutiesProduced metric.Counter
	dutiesMissed   metric.Counter
}

func New(registerer metric.Registerer) (*Metrics, error) {
	m := &Metrics{
		headSlot: metric.NewGauge(metric.GaugeOpts{
			Name: "head_slot",
			Help: "Slot of the canonical head",
		}),
		headChanges: metric.NewCounter(metric.CounterOpts{
			Name: "head_changes",
			Help: "Number of times the canonical head moved",
		}),
		justifiedSlot: metric.NewGauge(metric.GaugeOpts{
			Name: "justified_slot",
			Help: "Slot of the latest justified checkpoint",
		}),
		finalizedSlot: metric.NewGauge(metric.GaugeOpts{
			Name: "finalized_slot",
			Help: "Slot of the latest finalized checkpoint",
		}),
		blocksProcessed: metric.NewCounter(metric.CounterOpts{
			Name: "blocks_processed",
			Help: "Number of blocks applied to the fork-choice store",
		}),
		blocksRejected: metric.NewCounter(metric.CounterOpts{
			Name: "blocks_rejected",
			Help: "Number of blocks that failed the state transition",
		}),
		blocksPruned: metric.NewCounter(metric.CounterOpts{
			Name: "blocks_pruned",
			Help: "Number of blocks pruned after finalization",
		}),
		votesKnown: metric.NewCounter(metric.CounterOpts{
			Name: "votes_known",
			Help: "Number of attestations accepted into the known vote set",
		}),
		votesNew: metric.NewCounter(metric.CounterOpts{
			Name: "votes_new",
			Help: "Number of attestations buffered in the new vote set",
		}),
		gossipDecisions: metric.NewCounterVec(
			metric.CounterOpts{
				Name: "gossip_decisions",
				Help: "Gossip validation decisions by message kind",
			},
			[]string{kindLabel, decisionLabel},
		),
		pendingBlocks: metric.NewGauge(metric.GaugeOpts{
			Name: "pending_blocks",
			Help: "Blocks buffered while their parent is missing",
		}),
		pendingAttestations: metric.NewGauge(metric.GaugeOpts{
			Name: "pending_attestations",
			Help: "Attestations buffered while their target is missing",
		}),
		attestationPoolSize: metric.NewGauge(metric.GaugeOpts{
			Name: "attestation_pool_size",
			Help: "Recently seen attestations held for gossip",
		}),
		exitPoolSize: metric.NewGauge(metric.GaugeOpts{
			Name: "exit_pool_size",
			Help: "Voluntary exits waiting for inclusion",
		}),
		dutiesProduced: metric.NewCounter(metric.CounterOpts{
			Name: "duties_produced",
			Help: "Number of duties signed and submitted",
		}),
		dutiesMissed: metric.NewCounter(metric.CounterOpts{
			Name: "duties_missed",
			Help: "Number of duties skipped past their slot",
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(metric.AsCollector(m.headSlot)),
		registerer.Register(metric.AsCollector(m.headChanges)),
		registerer.Register(metric.AsCollector(m.justifiedSlot)),
		registerer.Register(metric.AsCollector(m.finalizedSlot)),
		registerer.Register(metric.AsCollector(m.blocksProcessed)),
		registerer.Register(metric.AsCollector(m.blocksRejected)),
		registerer.Register(metric.AsCollector(m.blocksPruned)),
		registerer.Register(metric.AsCollector(m.votesKnown)),
		registerer.Register(metric.AsCollector(m.votesNew)),
		registerer.Register(metric.AsCollector(m.gossipDecisions)),
		registerer.Register(metric.AsCollector(m.pendingBlocks)),
		registerer.Register(metric.AsCollector(m.pendingAttestations)),
		registerer.Register(metric.AsCollector(m.attestationPoolSize)),
		registerer.Register(metric.AsCollector(m.exitPoolSize)),
		registerer.Register(metric.AsCollector(m.dutiesProduced)),
		registerer.Register(metric.AsCollector(m.dutiesMissed)),
	)
	return m, errs.Err
}

func (m *Metrics) SetHead(slot types.Slot) {
	m.headSlot.Set(float64(slot))
}

func (m *Metrics) MarkHeadChange() {
	m.headChanges.Inc()
}

func (m *Metrics) SetJustified(slot types.Slot) {
	m.justifiedSlot.Set(float64(slot))
}

func (m *Metrics) SetFinalized(slot types.Slot) {
	m.finalizedSlot.Set(float64(slot))
}

func (m *Metrics) MarkBlockProcessed() {
	m.blocksProcessed.Inc()
}

func (m *Metrics) MarkBlockRejected() {
	m.blocksRejected.Inc()
}

func (m *Metrics) MarkBlocksPruned(n int) {
	m.blocksPruned.Add(float64(n))
}

func (m *Metrics) MarkVoteKnown() {
	m.votesKnown.Inc()
}

func (m *Metrics) MarkVoteNew() {
	m.votesNew.Inc()
}

func (m *Metrics) MarkGossip(kind, decision string) {
	m.gossipDecisions.With(metric.Labels{
		kindLabel:     kind,
		decisionLabel: decision,
	}).Inc()
}

func (m *Metrics) SetPendingBlocks(n int) {
	m.pendingBlocks.Set(float64(n))
}

func (m *Metrics) SetPendingAttestations(n int) {
	m.pendingAttestations.Set(float64(n))
}

func (m *Metrics) SetAttestationPoolSize(n int) {
	m.attestationPoolSize.Set(float64(n))
}

func (m *Metrics) SetExitPoolSize(n int) {
	m.exitPoolSize.Set(float64(n))
}

func (m *Metrics) MarkDutyProduced() {
	m.dutiesProduced.Inc()
}

func (m *Metrics) MarkDutyMissed() {
	m.dutiesMissed.Inc()
}
