package backup_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbak/internal/backup"
)

func TestDiff(t *testing.T) {
	reference := backup.Snapshot{
		backup.DomainNotes: json.RawMessage(`[{"id":1,"text":"a"}]`),
		backup.DomainTodos: json.RawMessage(`[1,2]`),
		backup.DomainEnv:   json.RawMessage(`{"A":"1","B":"2"}`),
	}
	current := backup.Snapshot{
		backup.DomainNotes:    json.RawMessage(`[{"text":"a","id":1}]`),
		backup.DomainTodos:    json.RawMessage(`[1]`),
		backup.DomainEnv:      json.RawMessage("{\n  \"B\": \"2\",\n  \"A\": \"1\"\n}"),
		backup.DomainKeybinds: json.RawMessage(`{}`),
	}

	changes, err := backup.Diff(reference, current)
	require.NoError(t, err)
	assert.Equal(t, []backup.Domain{backup.DomainTodos, backup.DomainKeybinds}, changes.Domains())
	assert.Equal(t, `[1]`, string(changes[backup.DomainTodos]))
	assert.False(t, changes.Has(backup.DomainNotes), "key order alone is not a change")
	assert.False(t, changes.Has(backup.DomainEnv), "whitespace alone is not a change")
}

func TestDiff_ApplyReconstructsCurrent(t *testing.T) {
	snapshots := []backup.Snapshot{
		{},
		{backup.DomainNotes: json.RawMessage(`[]`)},
		{
			backup.DomainNotes:    json.RawMessage(`[1,2,3]`),
			backup.DomainSessions: json.RawMessage(`{"s1":{"turns":4}}`),
			backup.DomainCron:     json.RawMessage(`null`),
		},
		{
			backup.DomainNotes:    json.RawMessage(`[1,2,3,4]`),
			backup.DomainSessions: json.RawMessage(`{"s1":{"turns":4}}`),
			backup.DomainCron:     json.RawMessage(`[{"every":"1h"}]`),
			backup.DomainPersonas: json.RawMessage(`"pirate"`),
		},
	}
	for i, base := range snapshots {
		for j, current := range snapshots {
			if len(current) < len(base) {
				// Domains never disappear from a collected snapshot.
				continue
			}
			changes, err := backup.Diff(base, current)
			require.NoError(t, err)
			assert.True(t, backup.Equal(backup.Apply(base, changes), current), "Apply(s%d, Diff(s%d, s%d))", i, i, j)
		}
	}
}

func TestDiff_ApplySweepAllDomains(t *testing.T) {
	values := []string{
		`null`,
		`"text"`,
		`42`,
		`-0.5`,
		`true`,
		`[1,"two",null,{"k":false}]`,
		`{"b":2,"a":{"d":[3],"c":null}}`,
		"{\"a\": {\"c\": null, \"d\": [3]}, \"b\": 2}",
		`{}`,
		`[]`,
		`"<a&b>"`,
	}
	domains := backup.AllDomains()
	require.Len(t, domains, 11)

	canon := func(raw json.RawMessage) string {
		c, err := backup.Canonicalize(raw)
		require.NoError(t, err)
		return string(c)
	}

	n := len(values)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			reference := backup.Snapshot{}
			current := backup.Snapshot{}
			for k, d := range domains {
				// Odd rounds leave some domains out of the reference.
				if i%2 == 0 || k%3 != 0 {
					reference[d] = json.RawMessage(values[(i+k)%n])
				}
				current[d] = json.RawMessage(values[(j+2*k)%n])
			}

			changes, err := backup.Diff(reference, current)
			require.NoError(t, err)
			for _, d := range domains {
				prev, ok := reference[d]
				want := !ok || canon(prev) != canon(current[d])
				assert.Equal(t, want, changes.Has(d), "round %d/%d domain %s", i, j, d)
			}
			assert.True(t, backup.Equal(backup.Apply(reference, changes), current), "round %d/%d", i, j)

			same, err := backup.Diff(current, current)
			require.NoError(t, err)
			assert.Empty(t, same, "round %d/%d", i, j)
		}
	}

	reordered := backup.Snapshot{backup.DomainWorkflows: json.RawMessage(values[6])}
	changes, err := backup.Diff(reordered, backup.Snapshot{backup.DomainWorkflows: json.RawMessage(values[7])})
	require.NoError(t, err)
	assert.Empty(t, changes, "reordered keys and whitespace are not a change")
}

func TestDiff_IdenticalSnapshotsHaveNoChanges(t *testing.T) {
	s := backup.Snapshot{
		backup.DomainNotes: json.RawMessage(`[1,2]`),
		backup.DomainEnv:   json.RawMessage(`{"x":"y"}`),
	}
	changes, err := backup.Diff(s, s)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestApply_DoesNotModifyInputs(t *testing.T) {
	base := backup.Snapshot{backup.DomainNotes: json.RawMessage(`[1]`)}
	changes := backup.ChangeSet{backup.DomainNotes: json.RawMessage(`[1,2]`)}

	out := backup.Apply(base, changes)
	out[backup.DomainNotes][1] = '9'

	assert.Equal(t, `[1]`, string(base[backup.DomainNotes]))
	assert.Equal(t, `[1,2]`, string(changes[backup.DomainNotes]))
}

func TestEqual(t *testing.T) {
	a := backup.Snapshot{backup.DomainEnv: json.RawMessage(`{"a":1,"b":2}`)}
	b := backup.Snapshot{backup.DomainEnv: json.RawMessage(`{ "b":2, "a":1 }`)}
	c := backup.Snapshot{backup.DomainEnv: json.RawMessage(`{"a":1}`)}
	d := backup.Snapshot{backup.DomainNotes: json.RawMessage(`{"a":1,"b":2}`)}

	assert.True(t, backup.Equal(a, b))
	assert.False(t, backup.Equal(a, c))
	assert.False(t, backup.Equal(a, d))
}
