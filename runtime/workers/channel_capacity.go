package workers

import (
	"context"
	"dm-lab/observability"
	"log/slog"
	"reflect"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically reports the length and capacity of
// internal channels. Reading len(channel) and cap(channel) is non-blocking,
// so this won't interfere with other goroutines.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel, metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{log: log, channels: channels, metricInterval: metricInterval}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel sampling")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

func (w *ChannelCapacityWorker) Sample() {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		// Verify if this is a channel
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		observability.ChannelLength.WithLabelValues(nc.Name).Set(float64(v.Len()))
		observability.ChannelCapacity.WithLabelValues(nc.Name).Set(float64(v.Cap()))
		if v.Cap() > 0 && v.Len() == v.Cap() {
			w.log.Warn("Channel is full", "name", nc.Name, "capacity", v.Cap())
		}
	}
}
