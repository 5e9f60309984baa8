// Package seam publishes path-decision events to the data-plane seam: the
// out-of-scope eBGP daemon and VPN orchestrator collaborators spec §6
// describes as "contracts, not code". This is the producer side of the
// same franz-go client the teacher used only as a consumer.
package seam

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ddarp-project/ddarpd/internal/bgp"
	"github.com/ddarp-project/ddarpd/internal/metrics"
	"github.com/ddarp-project/ddarpd/internal/sink"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"
)

// Envelope is the wire shape published to the route/tunnel topics. The
// Communities field carries the clamped OWL triple (spec §6) in the same
// "asn:value" form an eBGP daemon's configuration would recognize, so the
// out-of-scope collaborator has nothing left to compute.
type Envelope struct {
	Kind        string   `json:"kind"`
	Dest        string   `json:"dest"`
	NextHop     string   `json:"next_hop,omitempty"`
	Metric      float64  `json:"metric,omitempty"`
	LatencyMs   float64  `json:"latency_ms,omitempty"`
	JitterMs    float64  `json:"jitter_ms,omitempty"`
	LossRatio   float64  `json:"loss_ratio,omitempty"`
	Communities []string `json:"communities,omitempty"`
	EmittedAt   int64    `json:"emitted_at"`
}

// Producer publishes sink events onto Kafka topics.
type Producer struct {
	client      *kgo.Client
	logger      *zap.Logger
	routeTopic  string
	tunnelTopic string
}

// Config mirrors the seam section of the config schema.
type Config struct {
	Brokers     []string
	ClientID    string
	RouteTopic  string
	TunnelTopic string
	TLS         *tls.Config
	SASL        sasl.Mechanism
}

// New builds a producer client against the configured brokers.
func New(cfg Config, logger *zap.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	}
	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}
	if cfg.SASL != nil {
		opts = append(opts, kgo.SASL(cfg.SASL))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("seam: creating producer client: %w", err)
	}

	return &Producer{
		client:      client,
		logger:      logger,
		routeTopic:  cfg.RouteTopic,
		tunnelTopic: cfg.TunnelTopic,
	}, nil
}

// Close flushes outstanding records and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}

// Publish encodes and produces a batch of sink events, routing each to
// the route or tunnel topic by kind.
func (p *Producer) Publish(ctx context.Context, events []sink.Event) {
	for _, ev := range events {
		topic := p.routeTopic
		if ev.Kind == sink.EventRequestTunnel || ev.Kind == sink.EventReleaseTunnel {
			topic = p.tunnelTopic
		}
		p.publishOne(ctx, topic, ev)
	}
}

func (p *Producer) publishOne(ctx context.Context, topic string, ev sink.Event) {
	start := time.Now()

	env := Envelope{
		Kind:      ev.Kind.String(),
		Dest:      ev.Dest,
		NextHop:   ev.NextHop,
		Metric:    ev.Metric,
		EmittedAt: time.Now().Unix(),
	}
	if ev.Kind == sink.EventAdvertiseRoute {
		env.LatencyMs = ev.LatencyMs
		env.JitterMs = ev.JitterMs
		env.LossRatio = ev.LossRatio
		env.Communities = bgp.EncodeOwlCommunities(ev.LatencyMs, ev.JitterMs, ev.LossRatio).Strings()
	}

	payload, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("seam: encode envelope failed", zap.Error(err))
		return
	}

	key := ev.Dest
	if ev.Kind == sink.EventRequestTunnel || ev.Kind == sink.EventReleaseTunnel {
		key = ev.NextHop
	}
	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: payload}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		metrics.SeamPublishDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.SeamPublishErrorsTotal.WithLabelValues(topic).Inc()
			p.logger.Error("seam: publish failed", zap.String("topic", topic), zap.Error(err))
		}
	})
}
