package greenauth

import (
	"io"

	"github.com/MrEthical07/greenauth/internal/audit"
)

// AuditEvent is one security-relevant engine event. Events never carry raw
// tokens or password material.
type AuditEvent = audit.Event

// AuditSink consumes audit events on the dispatcher goroutine.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	MultiSink      = audit.MultiSink
	MQTTSink       = audit.MQTTSink
)

// NewChannelSink returns a sink buffering up to buffer events on a channel.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewMQTTSink publishes events to <topicPrefix>/<event_type> through pub.
func NewMQTTSink(pub audit.Publisher, topicPrefix string, qos byte) *MQTTSink {
	return audit.NewMQTTSink(pub, topicPrefix, qos)
}
