package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Domain names one category of application state that the engine collects
// and restores as a unit. The set is closed: unknown domains are never
// collected or restored.
type Domain string

const (
	DomainSessions  Domain = "sessions"
	DomainSnippets  Domain = "snippets"
	DomainTodos     Domain = "todos"
	DomainBookmarks Domain = "bookmarks"
	DomainNotes     Domain = "notes"
	DomainTemplates Domain = "templates"
	DomainPersonas  Domain = "personas"
	DomainWorkflows Domain = "workflows"
	DomainEnv       Domain = "env"
	DomainCron      Domain = "cron"
	DomainKeybinds  Domain = "keybinds"
)

var allDomains = []Domain{
	DomainSessions,
	DomainSnippets,
	DomainTodos,
	DomainBookmarks,
	DomainNotes,
	DomainTemplates,
	DomainPersonas,
	DomainWorkflows,
	DomainEnv,
	DomainCron,
	DomainKeybinds,
}

// AllDomains returns every known domain in collection order.
func AllDomains() []Domain {
	return append([]Domain(nil), allDomains...)
}

// ParseDomain returns the Domain named by s, or an error if s is not a known domain.
func ParseDomain(s string) (Domain, error) {
	for _, d := range allDomains {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown domain: %q", s)
}

// Known reports whether d is part of the closed domain set.
func (d Domain) Known() bool {
	_, err := ParseDomain(string(d))
	return err == nil
}

// Snapshot is a full point-in-time map of domain values.
type Snapshot map[Domain]json.RawMessage

// ChangeSet is a partial snapshot holding only domains whose value changed
// relative to a reference snapshot. A present domain carries its entire new value.
type ChangeSet map[Domain]json.RawMessage

// Domains returns the snapshot's domains in collection order.
func (s Snapshot) Domains() []Domain {
	return orderedDomains(s)
}

// Domains returns the changed domains in collection order.
func (c ChangeSet) Domains() []Domain {
	return orderedDomains(c)
}

// Has reports whether d is part of the change set.
func (c ChangeSet) Has(d Domain) bool {
	_, ok := c[d]
	return ok
}

func orderedDomains[M ~map[Domain]json.RawMessage](m M) []Domain {
	out := make([]Domain, 0, len(m))
	for _, d := range allDomains {
		if _, ok := m[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Canonicalize returns a stable serialization of a JSON value: object keys are
// sorted, insignificant whitespace removed and number literals preserved.
// An empty value is treated as JSON null.
func Canonicalize(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decoding value: trailing data")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ItemCount reports how many items a domain value holds: the length of an
// array, the number of keys of an object, zero for null and one for any scalar.
func ItemCount(raw json.RawMessage) int {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return 0
		}
		return len(items)
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return 0
		}
		return len(fields)
	case 'n':
		return 0
	default:
		return 1
	}
}

// DomainSummary describes one domain of a resolved snapshot.
type DomainSummary struct {
	Domain Domain
	Items  int
}

// Summarize returns per-domain item counts in collection order.
func Summarize(s Snapshot) []DomainSummary {
	out := make([]DomainSummary, 0, len(s))
	for _, d := range s.Domains() {
		out = append(out, DomainSummary{Domain: d, Items: ItemCount(s[d])})
	}
	return out
}
