package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
	"github.com/odyssey-cms/odyssey-cms/internal/storage/memory"
	"github.com/odyssey-cms/odyssey-cms/internal/system"
)

const seedYAML = `
languages:
  - name: English
    code: en
  - name: Polski
    code: pl
collections:
  - name: articles
    displayName: Articles
    schema:
      properties:
        title:
          type: string
        slug:
          type: string
          format: slug
    requiredPrivileges:
      create: [editor]
users:
  - email: admin@example.com
    password: secret
    privileges: [superadmin]
`

func newBroker(t *testing.T) *broker.Broker {
	t.Helper()
	b := broker.New()
	require.NoError(t, system.Register(b, entity.NewFactory(b, memory.New(), nil), nil))
	return b
}

func TestParseSeedNormalisesMappings(t *testing.T) {
	seed, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, seed.Languages, 2)
	require.Len(t, seed.Collections, 1)

	schema := seed.Collections[0]["schema"].(map[string]any)
	props := schema["properties"].(map[string]any)
	require.Equal(t, "slug", props["slug"].(map[string]any)["format"])
	require.Equal(t, []any{"editor"}, seed.Collections[0]["requiredPrivileges"].(map[string]any)["create"])

	def, err := entity.ParseDefinition(seed.Collections[0])
	require.NoError(t, err)
	require.Equal(t, []string{"slug"}, def.SlugFields())
}

func TestParseSeedRejectsScalars(t *testing.T) {
	_, err := ParseSeed(strings.NewReader("languages:\n  - en\n"))
	require.Error(t, err)

	seed, err := ParseSeed(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, seed.Languages)
}

func TestSeederIsIdempotent(t *testing.T) {
	b := newBroker(t)
	seed, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	seeder := NewSeeder(b, nil)
	report, err := seeder.Apply(context.Background(), seed)
	require.NoError(t, err)
	require.Equal(t, map[string]int{system.Languages: 2, system.Collections: 1, system.Users: 1}, report.Created)

	report, err = seeder.Apply(context.Background(), seed)
	require.NoError(t, err)
	require.Empty(t, report.Created)
	require.Equal(t, 2, report.Skipped[system.Languages])

	users, err := b.Call(context.Background(), system.Users+".find", nil, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.NotContains(t, users.([]map[string]any)[0], "password")
}

func TestSeederStopsOnInvalidRecords(t *testing.T) {
	b := newBroker(t)
	_, err := NewSeeder(b, nil).Apply(context.Background(), SeedFile{
		Collections: []map[string]any{{"displayName": "no name"}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}
