package screening

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeMap(t *testing.T, s *Session) map[string]any {
	t.Helper()
	data, err := Encode(s)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestDecode_RoundTrip(t *testing.T) {
	s := newSession(t)
	for i := 0; i < 8; i++ {
		_, err := s.SubmitResponse(i%3 != 2)
		require.NoError(t, err)
	}

	data, err := Encode(s)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestDecode_CompletedSession(t *testing.T) {
	s := newSession(t)
	drive(t, s, func(*Presentation) bool { return true })

	data, err := Encode(s)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)

	want, _ := s.Result()
	res, err := got.Result()
	require.NoError(t, err)
	assert.Equal(t, want, res)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"unknown schema version", func(m map[string]any) { m["schema_version"] = 2 }},
		{"missing thresholds", func(m map[string]any) { delete(m, "thresholds") }},
		{"unknown field", func(m map[string]any) { m["extra"] = true }},
		{"bad ear", func(m map[string]any) {
			m["items"].([]any)[0].(map[string]any)["ear"] = "center"
		}},
		{"frequency out of range", func(m map[string]any) {
			m["protocol"].(map[string]any)["frequencies"].([]any)[0] = 50000
		}},
		{"index beyond items", func(m map[string]any) { m["current_index"] = 13 }},
		{"missing active item", func(m map[string]any) { delete(m, "active") }},
		{"trial count mismatch", func(m map[string]any) {
			m["active"].(map[string]any)["trial_count"] = 5
		}},
		{"level out of bounds", func(m map[string]any) {
			m["active"].(map[string]any)["current_level"] = 55
		}},
		{"active item mismatch", func(m map[string]any) {
			m["active"].(map[string]any)["item"] = map[string]any{"frequency": 250, "ear": "right"}
		}},
		{"threshold for unknown frequency", func(m map[string]any) {
			m["thresholds"].(map[string]any)["left"] = map[string]any{"3000": 10}
		}},
		{"items reordered", func(m map[string]any) {
			items := m["items"].([]any)
			items[2], items[3] = items[3], items[2]
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t)
			_, err := s.SubmitResponse(true)
			require.NoError(t, err)

			m := encodeMap(t, s)
			tt.mutate(m)

			_, err = Decode(mustJSON(t, m))
			assert.ErrorIs(t, err, ErrMalformedState)
		})
	}
}

func TestDecode_CompletedWithoutAllThresholds(t *testing.T) {
	s := newSession(t)
	drive(t, s, func(*Presentation) bool { return true })

	m := encodeMap(t, s)
	delete(m["thresholds"].(map[string]any)["right"].(map[string]any), "250")

	_, err := Decode(mustJSON(t, m))
	assert.ErrorIs(t, err, ErrMalformedState)
}

func TestDecode_InvalidJSON(t *testing.T) {
	for _, raw := range []string{"", "{", "{}", "null", `"state"`, `{"thresholds": []}`} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedState, "input %q", raw)
	}
}

func TestEncode_RefusesBrokenSession(t *testing.T) {
	s := newSession(t)
	s.CurrentIndex = -1

	_, err := Encode(s)
	assert.ErrorIs(t, err, ErrMalformedState)
}
