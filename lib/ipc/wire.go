// Package ipc carries the message protocol between the host and the
// provider process: Request and Response values, their binary encoding,
// and a length-framed duplex socket.
//
// Values are encoded with the protobuf wire format (encoding/protowire),
// tag per field, zero values omitted. There is no generated code; the
// message shapes are fixed and small enough to encode by hand.
package ipc

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/runic-sh/runic/lib/plugin"
)

// Request is a host-to-provider message.
type Request interface{ isRequest() }

// Query asks every loaded plugin for matches against Text.
type Query struct {
	Text string
}

// Handle dispatches a committed selection back to the owning plugin.
type Handle struct {
	Plugin    plugin.PluginInfo
	Selection plugin.Match
}

// Quit tells the provider to shut down.
type Quit struct{}

func (Query) isRequest()  {}
func (Handle) isRequest() {}
func (Quit) isRequest()   {}

// Response is a provider-to-host message.
type Response interface{ isResponse() }

// Ready is emitted once, after all configured plugins finished loading.
type Ready struct {
	Info []plugin.PluginInfo
}

// Matches carries one plugin's results for the most recent query. An empty
// list is a valid result and means the plugin matched nothing.
type Matches struct {
	Plugin  plugin.PluginInfo
	Matches []plugin.Match
}

// Handled carries the outcome of a Handle request.
type Handled struct {
	Plugin plugin.PluginInfo
	Result plugin.HandleResult
}

func (Ready) isResponse()   {}
func (Matches) isResponse() {}
func (Handled) isResponse() {}

// Envelope field numbers. Requests and responses use separate envelopes,
// so the numbers may overlap.
const (
	fieldQuery  = 1
	fieldHandle = 2
	fieldQuit   = 3

	fieldReady   = 1
	fieldMatches = 2
	fieldHandled = 3
)

// EncodeRequest serializes a Request into an envelope payload.
func EncodeRequest(req Request) ([]byte, error) {
	var b []byte
	switch r := req.(type) {
	case Query:
		b = appendMessage(b, fieldQuery, appendQuery(nil, r))
	case Handle:
		b = appendMessage(b, fieldHandle, appendHandle(nil, r))
	case Quit:
		b = appendMessage(b, fieldQuit, nil)
	default:
		return nil, errors.Newf("unknown request type %T", req)
	}
	return b, nil
}

// DecodeRequest parses an envelope payload produced by EncodeRequest.
func DecodeRequest(b []byte) (Request, error) {
	num, payload, err := consumeEnvelope(b)
	if err != nil {
		return nil, err
	}
	switch num {
	case fieldQuery:
		return consumeQuery(payload)
	case fieldHandle:
		return consumeHandle(payload)
	case fieldQuit:
		return Quit{}, nil
	default:
		return nil, errors.Newf("unknown request field %d", num)
	}
}

// EncodeResponse serializes a Response into an envelope payload.
func EncodeResponse(resp Response) ([]byte, error) {
	var b []byte
	switch r := resp.(type) {
	case Ready:
		b = appendMessage(b, fieldReady, appendReady(nil, r))
	case Matches:
		b = appendMessage(b, fieldMatches, appendMatches(nil, r))
	case Handled:
		b = appendMessage(b, fieldHandled, appendHandled(nil, r))
	default:
		return nil, errors.Newf("unknown response type %T", resp)
	}
	return b, nil
}

// DecodeResponse parses an envelope payload produced by EncodeResponse.
func DecodeResponse(b []byte) (Response, error) {
	num, payload, err := consumeEnvelope(b)
	if err != nil {
		return nil, err
	}
	switch num {
	case fieldReady:
		return consumeReady(payload)
	case fieldMatches:
		return consumeMatches(payload)
	case fieldHandled:
		return consumeHandled(payload)
	default:
		return nil, errors.Newf("unknown response field %d", num)
	}
}

// consumeEnvelope expects exactly one length-delimited field and returns
// its number and payload.
func consumeEnvelope(b []byte) (protowire.Number, []byte, error) {
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return 0, nil, errors.Wrap(protowire.ParseError(n), "malformed envelope tag")
	}
	if typ != protowire.BytesType {
		return 0, nil, errors.Newf("unexpected envelope wire type %d", typ)
	}
	payload, m := protowire.ConsumeBytes(b[n:])
	if m < 0 {
		return 0, nil, errors.Wrap(protowire.ParseError(m), "malformed envelope payload")
	}
	if len(b) != n+m {
		return 0, nil, errors.Newf("trailing bytes after envelope")
	}
	return num, payload, nil
}

func appendMessage(b []byte, num protowire.Number, payload []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, data []byte) []byte {
	if len(data) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, data)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

// PluginInfo: 1=name, 2=icon.

func appendPluginInfo(b []byte, info plugin.PluginInfo) []byte {
	b = appendString(b, 1, info.Name)
	b = appendString(b, 2, info.Icon)
	return b
}

func consumePluginInfo(b []byte) (plugin.PluginInfo, error) {
	var info plugin.PluginInfo
	err := eachField(b, func(num protowire.Number, payload []byte, v uint64) error {
		switch num {
		case 1:
			info.Name = string(payload)
		case 2:
			info.Icon = string(payload)
		}
		return nil
	})
	return info, err
}

// Match: 1=title, 2=description, 3=use_markup, 4=icon, 5=id.

func appendMatch(b []byte, m plugin.Match) []byte {
	b = appendString(b, 1, m.Title)
	b = appendString(b, 2, m.Description)
	b = appendBool(b, 3, m.UseMarkup)
	b = appendString(b, 4, m.Icon)
	b = appendVarint(b, 5, m.ID)
	return b
}

func consumeMatch(b []byte) (plugin.Match, error) {
	var m plugin.Match
	err := eachField(b, func(num protowire.Number, payload []byte, v uint64) error {
		switch num {
		case 1:
			m.Title = string(payload)
		case 2:
			m.Description = string(payload)
		case 3:
			m.UseMarkup = v != 0
		case 4:
			m.Icon = string(payload)
		case 5:
			m.ID = v
		}
		return nil
	})
	return m, err
}

// HandleResult: 1=action, 2=exclusive, 3=data.

func appendHandleResult(b []byte, r plugin.HandleResult) []byte {
	b = appendVarint(b, 1, uint64(r.Action))
	b = appendBool(b, 2, r.Exclusive)
	b = appendBytes(b, 3, r.Data)
	return b
}

func consumeHandleResult(b []byte) (plugin.HandleResult, error) {
	var r plugin.HandleResult
	err := eachField(b, func(num protowire.Number, payload []byte, v uint64) error {
		switch num {
		case 1:
			r.Action = plugin.HandleAction(v)
		case 2:
			r.Exclusive = v != 0
		case 3:
			r.Data = append([]byte(nil), payload...)
		}
		return nil
	})
	return r, err
}

// Query: 1=text.

func appendQuery(b []byte, q Query) []byte {
	return appendString(b, 1, q.Text)
}

func consumeQuery(b []byte) (Query, error) {
	var q Query
	err := eachField(b, func(num protowire.Number, payload []byte, v uint64) error {
		if num == 1 {
			q.Text = string(payload)
		}
		return nil
	})
	return q, err
}

// Handle: 1=plugin, 2=selection.

func appendHandle(b []byte, h Handle) []byte {
	b = appendMessage(b, 1, appendPluginInfo(nil, h.Plugin))
	b = appendMessage(b, 2, appendMatch(nil, h.Selection))
	return b
}

func consumeHandle(b []byte) (Handle, error) {
	var h Handle
	err := eachField(b, func(num protowire.Number, payload []byte, v uint64) error {
		var err error
		switch num {
		case 1:
			h.Plugin, err = consumePluginInfo(payload)
		case 2:
			h.Selection, err = consumeMatch(payload)
		}
		return err
	})
	return h, err
}

// Ready: repeated 1=info.

func appendReady(b []byte, r Ready) []byte {
	for _, info := range r.Info {
		b = appendMessage(b, 1, appendPluginInfo(nil, info))
	}
	return b
}

func consumeReady(b []byte) (Ready, error) {
	var r Ready
	err := eachField(b, func(num protowire.Number, payload []byte, v uint64) error {
		if num == 1 {
			info, err := consumePluginInfo(payload)
			if err != nil {
				return err
			}
			r.Info = append(r.Info, info)
		}
		return nil
	})
	return r, err
}

// Matches: 1=plugin, repeated 2=match.

func appendMatches(b []byte, m Matches) []byte {
	b = appendMessage(b, 1, appendPluginInfo(nil, m.Plugin))
	for _, match := range m.Matches {
		b = appendMessage(b, 2, appendMatch(nil, match))
	}
	return b
}

func consumeMatches(b []byte) (Matches, error) {
	var m Matches
	err := eachField(b, func(num protowire.Number, payload []byte, v uint64) error {
		switch num {
		case 1:
			info, err := consumePluginInfo(payload)
			if err != nil {
				return err
			}
			m.Plugin = info
		case 2:
			match, err := consumeMatch(payload)
			if err != nil {
				return err
			}
			m.Matches = append(m.Matches, match)
		}
		return nil
	})
	return m, err
}

// Handled: 1=plugin, 2=result.

func appendHandled(b []byte, h Handled) []byte {
	b = appendMessage(b, 1, appendPluginInfo(nil, h.Plugin))
	b = appendMessage(b, 2, appendHandleResult(nil, h.Result))
	return b
}

func consumeHandled(b []byte) (Handled, error) {
	var h Handled
	err := eachField(b, func(num protowire.Number, payload []byte, v uint64) error {
		var err error
		switch num {
		case 1:
			h.Plugin, err = consumePluginInfo(payload)
		case 2:
			h.Result, err = consumeHandleResult(payload)
		}
		return err
	})
	return h, err
}

// eachField walks the fields of a message, invoking fn with the payload of
// length-delimited fields or the value of varint fields. Unknown fields
// are skipped, matching protobuf semantics.
func eachField(b []byte, fn func(num protowire.Number, payload []byte, v uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "malformed field tag")
		}
		b = b[n:]

		switch typ {
		case protowire.BytesType:
			payload, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "malformed field payload")
			}
			b = b[m:]
			if err := fn(num, payload, 0); err != nil {
				return err
			}
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "malformed varint")
			}
			b = b[m:]
			if err := fn(num, nil, v); err != nil {
				return err
			}
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), "malformed field value")
			}
			b = b[m:]
		}
	}
	return nil
}
