package translation

import "encoding/json"

// Event is one message exchanged over a pool session's WebSocket, using
// the realtime-API event shape the teacher's client already assumes
// (livetranslate/realtime/events.go): a "type" discriminator plus a
// dynamic bag of type-specific fields captured in Extra.
type Event struct {
	EventID string     `json:"event_id,omitempty"`
	Type    string     `json:"type"`
	Error   *WireError `json:"error,omitempty"`
	Extra   map[string]any `json:"-"`
}

// WireError is the remote API's error envelope.
type WireError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// UnmarshalJSON captures the known fields plus every remaining field
// into Extra, so callers can read "item_id", "delta", "text" and
// similar type-specific payload fields without a second decode.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type alias Event
	aux := &struct{ *alias }{alias: (*alias)(e)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	e.Extra = make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "event_id" || k == "type" || k == "error" {
			continue
		}
		e.Extra[k] = v
	}
	return nil
}

func (e *Event) extraString(key string) (string, bool) {
	if e.Extra == nil {
		return "", false
	}
	v, ok := e.Extra[key].(string)
	return v, ok
}

// ItemID returns the correlated item/response id carried by delta and
// done events, when present.
func (e *Event) ItemID() (string, bool) {
	if v, ok := e.extraString("item_id"); ok {
		return v, ok
	}
	return e.extraString("response_id")
}

// Delta returns the incremental text payload of a *.delta event.
func (e *Event) Delta() (string, bool) { return e.extraString("delta") }

// Text returns the full text payload of a *.done event.
func (e *Event) Text() (string, bool) { return e.extraString("text") }

// eventItemCreate builds an item.create event carrying one committed
// source-language text segment, per spec.md §4.C step 2.
func eventItemCreate(itemID, text, sourceLang string) map[string]any {
	return map[string]any{
		"type":     "item.create",
		"event_id": itemID,
		"item": map[string]any{
			"id":   itemID,
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
		"source_lang": sourceLang,
	}
}

// eventResponseCreate requests a translation of the item itemID into
// targetLang.
func eventResponseCreate(itemID, targetLang string) map[string]any {
	return map[string]any{
		"type": "response.create",
		"response": map[string]any{
			"item_id":     itemID,
			"target_lang": targetLang,
			"modalities":  []string{"text"},
		},
	}
}

// eventSessionUpdate configures the connection-wide translation
// session, sent once right after connect.
func eventSessionUpdate(sourceLang string) map[string]any {
	return map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":  []string{"text"},
			"source_lang": sourceLang,
		},
	}
}
