package chromegcm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

const (
	// DefaultMessageLength is the number of characters of the serialized
	// payload that are sent when no MessageLength option is given.
	DefaultMessageLength = 130

	// MaxSubchannelID is the highest subchannel the push API accepts.
	MaxSubchannelID = 3
)

// PayloadKind selects how a Message's content is serialized.
type PayloadKind int

const (
	// PayloadPlainText sends the content string unchanged.
	PayloadPlainText PayloadKind = iota
	// PayloadJSON sends the JSON encoding of the content.
	PayloadJSON
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadPlainText:
		return "plain-text"
	case PayloadJSON:
		return "json"
	default:
		return fmt.Sprintf("PayloadKind(%d)", int(k))
	}
}

// Options are the per-message send settings.
type Options struct {
	SubchannelID  int
	MessageLength int
}

// DefaultOptions returns a fresh copy of the default message options.
func DefaultOptions() Options {
	return Options{SubchannelID: 0, MessageLength: DefaultMessageLength}
}

// Option map keys recognized by WithOptionMap. Any other key is ignored.
const (
	OptionSubchannelID  = "subchannel_id"
	OptionMessageLength = "message_length"
)

// MessageOption configures a Message.
type MessageOption func(*Options) error

// WithSubchannelID sets the subchannel the message is delivered on. The
// push API only knows subchannels 0 through MaxSubchannelID; anything else
// fails message construction with ErrInvalidArgument.
func WithSubchannelID(id int) MessageOption {
	return func(o *Options) error {
		o.SubchannelID = id
		return nil
	}
}

// WithMessageLength sets how many characters of the payload are sent.
func WithMessageLength(n int) MessageOption {
	return func(o *Options) error {
		o.MessageLength = n
		return nil
	}
}

// WithOptionMap merges an untyped option mapping over the defaults.
// Unknown keys are ignored; a recognized key holding a non-integer value
// is an error.
func WithOptionMap(m map[string]any) MessageOption {
	return func(o *Options) error {
		for key, v := range m {
			var dst *int
			switch key {
			case OptionSubchannelID:
				dst = &o.SubchannelID
			case OptionMessageLength:
				dst = &o.MessageLength
			default:
				continue
			}
			n, ok := asInt(v)
			if !ok {
				return invalidArgument("option %s: want integer, got %T", key, v)
			}
			*dst = n
		}
		return nil
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// Message is a push payload addressed to one or more channels.
type Message struct {
	kind       PayloadKind
	content    any
	payload    string
	channelIDs []string
	options    Options
}

// NewPlainTextMessage creates a message whose payload is text as-is.
func NewPlainTextMessage(text string, channelIDs []string, opts ...MessageOption) (*Message, error) {
	return newMessage(PayloadPlainText, text, text, channelIDs, opts)
}

// NewJSONMessage creates a message whose payload is the JSON encoding of v.
// v is encoded here, so later changes to it do not reach the payload.
func NewJSONMessage(v any, channelIDs []string, opts ...MessageOption) (*Message, error) {
	payload, err := encodeJSON(v)
	if err != nil {
		return nil, invalidArgument("json content: %v", err)
	}
	return newMessage(PayloadJSON, v, payload, channelIDs, opts)
}

func newMessage(kind PayloadKind, content any, payload string, channelIDs []string, opts []MessageOption) (*Message, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}
	if options.MessageLength <= 0 {
		return nil, invalidArgument("message length must be positive, got %d", options.MessageLength)
	}
	if options.SubchannelID < 0 || options.SubchannelID > MaxSubchannelID {
		return nil, invalidArgument("subchannel id must be in [0, %d], got %d", MaxSubchannelID, options.SubchannelID)
	}
	return &Message{
		kind:       kind,
		content:    content,
		payload:    payload,
		channelIDs: slices.Clone(channelIDs),
		options:    options,
	}, nil
}

// Kind reports how the message content is serialized.
func (m *Message) Kind() PayloadKind { return m.kind }

// Content returns the raw content the message was created with. For JSON
// messages it is the caller's value; changing it does not alter the payload.
func (m *Message) Content() any { return m.content }

// ChannelIDs returns a copy of the target channel IDs in send order.
func (m *Message) ChannelIDs() []string { return slices.Clone(m.channelIDs) }

// Options returns the merged message options.
func (m *Message) Options() Options { return m.options }

// SerializePayload returns the full, untruncated payload text. It is fixed
// when the message is created.
func (m *Message) SerializePayload() (string, error) {
	switch m.kind {
	case PayloadPlainText, PayloadJSON:
		return m.payload, nil
	default:
		return "", invalidArgument("unknown payload kind %v", m.kind)
	}
}

// WirePayload returns the payload as sent: SerializePayload cut to the
// first MessageLength characters.
func (m *Message) WirePayload() (string, error) {
	payload, err := m.SerializePayload()
	if err != nil {
		return "", err
	}
	return truncate(payload, m.options.MessageLength), nil
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// encodeJSON is json.Marshal without HTML escaping, so the payload length
// matches the caller's text.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
