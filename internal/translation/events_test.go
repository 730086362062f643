package translation

import "testing"

func TestEventUnmarshalCapturesExtraFields(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantType   string
		wantItemID string
		wantDelta  string
	}{
		{
			name:       "TextDelta",
			json:       `{"type":"response.text.delta","event_id":"evt1","item_id":"item_1","delta":"Hola"}`,
			wantType:   "response.text.delta",
			wantItemID: "item_1",
			wantDelta:  "Hola",
		},
		{
			name:       "TextDone",
			json:       `{"type":"response.text.done","item_id":"item_1","text":"Hola mundo"}`,
			wantType:   "response.text.done",
			wantItemID: "item_1",
		},
		{
			name:     "Error",
			json:     `{"type":"error","error":{"type":"invalid_request_error","message":"bad input"}}`,
			wantType: "error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var e Event
			if err := e.UnmarshalJSON([]byte(tc.json)); err != nil {
				t.Fatalf("UnmarshalJSON: %v", err)
			}
			if e.Type != tc.wantType {
				t.Errorf("Type = %q, want %q", e.Type, tc.wantType)
			}
			if tc.wantItemID != "" {
				got, ok := e.ItemID()
				if !ok || got != tc.wantItemID {
					t.Errorf("ItemID() = %q, %v, want %q", got, ok, tc.wantItemID)
				}
			}
			if tc.wantDelta != "" {
				got, ok := e.Delta()
				if !ok || got != tc.wantDelta {
					t.Errorf("Delta() = %q, %v, want %q", got, ok, tc.wantDelta)
				}
			}
			if tc.name == "Error" && (e.Error == nil || e.Error.Message != "bad input") {
				t.Errorf("Error = %+v, want message %q", e.Error, "bad input")
			}
		})
	}
}
