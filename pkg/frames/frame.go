package frames

import "time"

type Kind string

const (
	KindAudio  Kind = "audio"
	KindText   Kind = "text"
	KindSystem Kind = "system"
)

// System frame names.
const (
	SystemConnect    = "connect"
	SystemDisconnect = "disconnect"
)

// Frame is one inbound unit delivered by a transport to a session.
type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

// AudioFrame carries a binary audio chunk (webm/opus from browsers).
type AudioFrame struct {
	pts  int64
	data []byte
	meta map[string]string
}

func NewAudioFrame(streamID string, pts int64, data []byte, meta map[string]string) AudioFrame {
	return AudioFrame{
		pts:  pts,
		data: data,
		meta: mergeMeta(streamID, meta),
	}
}

func (a AudioFrame) Kind() Kind              { return KindAudio }
func (a AudioFrame) PTS() int64              { return a.pts }
func (a AudioFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AudioFrame) Data() []byte            { return append([]byte(nil), a.data...) }
func (a AudioFrame) RawPayload() []byte      { return a.data }
func (a AudioFrame) Len() int                { return len(a.data) }

// TextFrame carries a text message, normally a JSON control object.
type TextFrame struct {
	pts  int64
	text string
	meta map[string]string
}

func NewTextFrame(streamID string, pts int64, text string, meta map[string]string) TextFrame {
	return TextFrame{
		pts:  pts,
		text: text,
		meta: mergeMeta(streamID, meta),
	}
}

func (t TextFrame) Kind() Kind              { return KindText }
func (t TextFrame) PTS() int64              { return t.pts }
func (t TextFrame) Meta() map[string]string { return cloneMeta(t.meta) }
func (t TextFrame) Text() string            { return t.text }

// SystemFrame signals connection lifecycle events.
type SystemFrame struct {
	pts  int64
	name string
	meta map[string]string
}

func NewSystemFrame(streamID string, pts int64, name string, meta map[string]string) SystemFrame {
	return SystemFrame{
		pts:  pts,
		name: name,
		meta: mergeMeta(streamID, meta),
	}
}

func (s SystemFrame) Kind() Kind              { return KindSystem }
func (s SystemFrame) PTS() int64              { return s.pts }
func (s SystemFrame) Meta() map[string]string { return cloneMeta(s.meta) }
func (s SystemFrame) Name() string            { return s.name }

// Now is the PTS source used by transports.
func Now() int64 { return time.Now().UnixNano() }

func mergeMeta(streamID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 1+len(meta))
	if streamID != "" {
		out[MetaStreamID] = streamID
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
