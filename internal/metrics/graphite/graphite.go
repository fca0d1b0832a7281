// Package graphite periodically pushes gathered Prometheus metrics to
// Graphite over plaintext protocol.
package graphite

import (
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/centrifugal/wsgate/internal/logging"

	"github.com/FZambia/eagle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var nonASCII = regexp.MustCompile("[[:^ascii:]]")

// PreparePathComponent cleans string to be used as Graphite metric path.
func PreparePathComponent(s string) string {
	s = nonASCII.ReplaceAllLiteralString(s, "_")
	return strings.ReplaceAll(s, ".", "_")
}

// Config for Graphite Exporter.
type Config struct {
	Address  string
	Gatherer prometheus.Gatherer
	Interval time.Duration
	Prefix   string
	// Tags switches to Graphite tagged series instead of putting label values
	// into metric path.
	Tags bool
}

// Exporter to Graphite.
type Exporter struct {
	config    Config
	dialer    net.Dialer
	sink      chan eagle.Metrics
	eagle     *eagle.Eagle
	closeOnce sync.Once
}

// New creates new Graphite Exporter. Gathering starts immediately, Run must
// be called to consume gathered metrics.
func New(c Config) *Exporter {
	e := &Exporter{
		config: c,
		dialer: net.Dialer{Timeout: time.Second},
		sink:   make(chan eagle.Metrics),
	}
	e.eagle = eagle.New(eagle.Config{
		Gatherer: c.Gatherer,
		Interval: c.Interval,
		Sink:     e.sink,
	})
	return e
}

func (e *Exporter) Run(ctx context.Context) error {
	defer e.close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-e.sink:
			if err := e.export(ctx, m); err != nil && logging.Enabled(logging.DebugLevel) {
				log.Debug().Err(err).Str("address", e.config.Address).Msg("error exporting metrics to Graphite")
			}
		}
	}
}

func (e *Exporter) close() {
	e.closeOnce.Do(func() {
		_ = e.eagle.Close()
	})
}

func (e *Exporter) export(ctx context.Context, m eagle.Metrics) error {
	conn, err := e.dialer.DialContext(ctx, "tcp", e.config.Address)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return e.write(conn, m, time.Now())
}

func makeTags(labels []string) string {
	if len(labels) < 2 {
		return ""
	}
	var sb strings.Builder
	for i := 0; i+1 < len(labels); i += 2 {
		sb.WriteByte(';')
		sb.WriteString(labels[i])
		sb.WriteByte('=')
		sb.WriteString(labels[i+1])
	}
	return sb.String()
}

func (e *Exporter) write(w io.Writer, m eagle.Metrics, now time.Time) error {
	ts := now.Unix()
	for _, item := range m.Items {
		for _, value := range item.Values {
			parts := []string{e.config.Prefix}
			for _, part := range []string{item.Namespace, item.Subsystem, item.Name, value.Name} {
				if part != "" {
					parts = append(parts, part)
				}
			}
			if !e.config.Tags {
				parts = append(parts, value.Labels...)
			}
			key := strings.Join(parts, ".")
			if e.config.Tags {
				key += makeTags(value.Labels)
			}
			var err error
			if item.Type == eagle.MetricTypeCounter {
				_, err = fmt.Fprintf(w, "%s %d %d\n", key, int64(value.Value), ts)
			} else {
				_, err = fmt.Fprintf(w, "%s %f %d\n", key, value.Value, ts)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
