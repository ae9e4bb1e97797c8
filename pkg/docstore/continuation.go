package docstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// continuationVersion guards against tokens from incompatible clients.
const continuationVersion = 1

// rangeMarker is the committed resume point of one partition range: the
// service token that produced the page currently being consumed, plus the
// number of its items already delivered. Skip is only non-zero for ordered
// cross-partition feeds, which can stop mid-page.
type rangeMarker struct {
	Token string `json:"token"`
	Skip  int    `json:"skip,omitempty"`
}

// continuationState is the internal structure of the externally-opaque
// continuation token: a full snapshot of per-range progress. Exhausted
// ranges are omitted; an empty Ranges map means the whole feed is done.
type continuationState struct {
	Version int                    `json:"v"`
	Ranges  map[string]rangeMarker `json:"ranges"`
	OrderBy string                 `json:"orderBy,omitempty"`
}

// encodeContinuation renders the state as an opaque string safe to pass
// back verbatim in a request header.
func encodeContinuation(state *continuationState) string {
	state.Version = continuationVersion

	data, err := json.Marshal(state)
	if err != nil {
		// Marshalling a map of strings cannot fail; keep the signature
		// clean for callers.
		return ""
	}

	return base64.RawURLEncoding.EncodeToString(data)
}

// decodeContinuation parses an externally-supplied token. An empty token
// yields a nil state, meaning "start from the beginning".
func decodeContinuation(token string) (*continuationState, error) {
	if token == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, &ValidationError{Message: "malformed continuation token"}
	}

	var state continuationState

	err = json.Unmarshal(data, &state)
	if err != nil {
		return nil, &ValidationError{Message: "malformed continuation token"}
	}

	if state.Version != continuationVersion {
		return nil, &ValidationError{Message: fmt.Sprintf("unsupported continuation token version %d", state.Version)}
	}

	if state.Ranges == nil {
		state.Ranges = make(map[string]rangeMarker)
	}

	return &state, nil
}
