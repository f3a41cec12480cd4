package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandLayout(t *testing.T) {
	root := NewRootCommand()

	want := map[string]bool{"start": true, "migrate": true, "seed": true, "quote": true, "worker": true}
	for _, cmd := range root.Commands() {
		delete(want, cmd.Name())
	}
	assert.Empty(t, want, "missing commands")

	migrate, _, err := root.Find([]string{"migrate", "status"})
	require.NoError(t, err)
	assert.Equal(t, "status", migrate.Name())
}

func TestQuoteRejectsBadArguments(t *testing.T) {
	cases := map[string][]string{
		"missing quantity":   {"quote", "1"},
		"non numeric id":     {"quote", "abc", "10"},
		"non numeric amount": {"quote", "1", "ten"},
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			root := NewRootCommand()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs(args)

			assert.Error(t, root.Execute())
		})
	}
}
