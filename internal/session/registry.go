package session

import "sync"

// Registry maps sessionId to *Session. It is the single public handle
// surface for session lifecycle, per spec.md §9's guidance to replace
// ad-hoc globals with an owned value constructed in main and passed by
// reference.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the existing session for id, or creates one with
// the given tenant/entitlements if this is the first attach.
func (r *Registry) GetOrCreate(id, tenantID string, ent Entitlements) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := NewSession(id, tenantID, ent)
	r.sessions[id] = s
	return s
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops a session from the registry (explicit end, or last
// listener left and the caller decided to tear it down).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// AddListener attaches a listener to a session, creating the session if
// necessary.
func (r *Registry) AddListener(sessionID, tenantID string, ent Entitlements, l *Listener) *Session {
	s := r.GetOrCreate(sessionID, tenantID, ent)
	s.AddListener(l)
	return s
}

// RemoveListener detaches a listener from a session. If the session
// becomes empty, it is removed from the registry (destroyed per
// spec.md §3: "destroyed when the last client leaves").
func (r *Registry) RemoveListener(sessionID, clientID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	_, empty := s.RemoveListener(clientID)
	if empty {
		r.Remove(sessionID)
	}
}

// UpdateListenerLanguage changes a listener's language subscription
// without requiring a reconnect.
func (r *Registry) UpdateListenerLanguage(sessionID, clientID, newLang string) bool {
	s, ok := r.Get(sessionID)
	if !ok {
		return false
	}
	l, ok := s.Listener(clientID)
	if !ok {
		return false
	}
	l.SetLang(newLang)
	return true
}

// ListListenersByLanguage returns the listeners in a session subscribed
// to lang (or to "all languages", since they also receive it).
func (r *Registry) ListListenersByLanguage(sessionID, lang string) []*Listener {
	s, ok := r.Get(sessionID)
	if !ok {
		return nil
	}
	var out []*Listener
	for _, l := range s.Snapshot() {
		if l.Matches(lang) {
			out = append(out, l)
		}
	}
	return out
}

// GetSessionLanguages returns the distinct languages subscribed to
// within a session.
func (r *Registry) GetSessionLanguages(sessionID string) []string {
	s, ok := r.Get(sessionID)
	if !ok {
		return nil
	}
	return s.Languages()
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
