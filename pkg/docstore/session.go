package docstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/themajix/docstore-client/internal/constants"
)

// SessionStore holds the session consistency state of one logical session.
// Tokens map partition range ids to the highest LSN the client has observed.
// Merging is commutative and monotonic: concurrent writers can only advance
// a range, never regress it. The client never fabricates tokens; everything
// in the store arrived on a response.
type SessionStore struct {
	mu  sync.RWMutex
	lsn map[string]int64
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		lsn: make(map[string]int64),
	}
}

// Merge folds a response token into the store, keeping the most advanced
// LSN per range. Unparsable segments are ignored.
func (s *SessionStore) Merge(token string) {
	if token == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, segment := range strings.Split(token, ",") {
		rangeID, lsnText, ok := strings.Cut(segment, ":")
		if !ok {
			continue
		}

		lsn, err := strconv.ParseInt(lsnText, 10, 64)
		if err != nil {
			continue
		}

		if lsn > s.lsn[rangeID] {
			s.lsn[rangeID] = lsn
		}
	}
}

// Token renders the current session token in canonical (sorted) form.
// Returns the empty string when nothing has been observed yet.
func (s *SessionStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.lsn) == 0 {
		return ""
	}

	rangeIDs := make([]string, 0, len(s.lsn))
	for rangeID := range s.lsn {
		rangeIDs = append(rangeIDs, rangeID)
	}

	sort.Strings(rangeIDs)

	segments := make([]string, 0, len(rangeIDs))
	for _, rangeID := range rangeIDs {
		segments = append(segments, rangeID+":"+strconv.FormatInt(s.lsn[rangeID], 10))
	}

	return strings.Join(segments, ",")
}

// Clear drops all session state.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lsn = make(map[string]int64)
}

// SessionHandler propagates session tokens between operations sharing a
// logical session. Outbound, it stamps the current token on requests that
// read under session consistency; inbound, it merges every token the
// service returns.
type SessionHandler struct {
	store *SessionStore
	level ConsistencyLevel
}

// NewSessionHandler builds a session handler over the given store.
func NewSessionHandler(store *SessionStore, level ConsistencyLevel) *SessionHandler {
	return &SessionHandler{
		store: store,
		level: level,
	}
}

// Process implements Handler.
func (h *SessionHandler) Process(ctx context.Context, req *OperationRequest, next Next) (*ResponseMessage, error) {
	if h.applies(req) && req.Headers.Get(constants.HeaderSessionToken) == "" {
		if token := h.store.Token(); token != "" {
			req.Headers.Set(constants.HeaderSessionToken, token)
		}
	}

	resp, err := next(ctx, req)
	if err != nil {
		return nil, err
	}

	h.store.Merge(resp.SessionToken())

	return resp, nil
}

// applies reports whether the request should carry a session token.
func (h *SessionHandler) applies(req *OperationRequest) bool {
	level := ConsistencyLevel(req.Headers.Get(constants.HeaderConsistencyLevel))
	if level == "" {
		level = h.level
	}

	return level == ConsistencySession
}
