package generator

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"commentbot/packages/config"
	"commentbot/packages/domain"
	"commentbot/packages/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAI struct {
	text string
	err  error
}

func (f *fakeAI) Draft(ctx context.Context, cat domain.Category, postText, author string) (string, error) {
	return f.text, f.err
}

func seededStore(t *testing.T, cat domain.Category, bodies ...string) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	for i, body := range bodies {
		err := st.UpsertTemplate(context.Background(), domain.Template{
			ID:       string(cat) + "-" + string(rune('a'+i)),
			Category: cat,
			Body:     body,
		})
		require.NoError(t, err)
	}
	return st
}

func TestGenerate_RotationSpreadsUseCounts(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t, domain.CategoryGeneral,
		"Love this, {name}!",
		"Beautiful piece, {name}.",
		"Stunning work {name}",
	)
	g := New(st, nil, nil, rand.New(rand.NewSource(7)))

	const n = 31
	for i := 0; i < n; i++ {
		_, err := g.Generate(ctx, domain.CategoryGeneral, "post", "Jane Doe")
		require.NoError(t, err)
	}

	templates, err := st.TemplatesByCategory(ctx, domain.CategoryGeneral)
	require.NoError(t, err)
	require.Len(t, templates, 3)

	min, max := templates[0].UseCount, templates[0].UseCount
	var total int64
	for _, tmpl := range templates {
		if tmpl.UseCount < min {
			min = tmpl.UseCount
		}
		if tmpl.UseCount > max {
			max = tmpl.UseCount
		}
		total += tmpl.UseCount
	}
	assert.Equal(t, int64(n), total)
	assert.LessOrEqual(t, max-min, int64(1))
}

func TestGenerate_PersonalizesWithFirstName(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t, domain.CategoryService, "Hi {name}, we can help with that!")
	g := New(st, nil, nil, rand.New(rand.NewSource(1)))

	text, err := g.Generate(ctx, domain.CategoryService, "post", "Maria Lopez")
	require.NoError(t, err)
	assert.Equal(t, "Hi Maria, we can help with that!", text)
}

func TestGenerate_FallsBackToGenericName(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t, domain.CategoryService, "Hi {name}, we can help with that!")
	g := New(st, nil, nil, rand.New(rand.NewSource(1)))

	text, err := g.Generate(ctx, domain.CategoryService, "post", "Sponsored")
	require.NoError(t, err)
	assert.Equal(t, "Hi there, we can help with that!", text)
}

func TestGenerate_AIFirstTemplateFallback(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t, domain.CategoryISO, "We can source that for you, {name}.")

	// Working AI path wins.
	g := New(st, &fakeAI{text: "Hey {name}, we have one in stock."}, nil, rand.New(rand.NewSource(1)))
	text, err := g.Generate(ctx, domain.CategoryISO, "post", "Anna K")
	require.NoError(t, err)
	assert.Equal(t, "Hey Anna, we have one in stock.", text)

	// Failing AI path falls back to templates.
	g = New(st, &fakeAI{err: errors.New("quota exhausted")}, nil, rand.New(rand.NewSource(1)))
	text, err = g.Generate(ctx, domain.CategoryISO, "post", "Anna K")
	require.NoError(t, err)
	assert.Equal(t, "We can source that for you, Anna.", text)
}

func TestGenerate_NoTemplatesNoAI(t *testing.T) {
	ctx := context.Background()
	g := New(store.NewMemoryStore(), nil, nil, rand.New(rand.NewSource(1)))

	_, err := g.Generate(ctx, domain.CategoryGeneral, "post", "Jane")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.FaultGenerationUnavailable))
}

func TestGenerate_VariationApplied(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t, domain.CategoryGeneral, "Gorgeous! Love it, {name}.")
	variations := []config.Variation{{Find: "Gorgeous!", Replace: "Gorgeous -"}}

	g := New(st, nil, variations, rand.New(rand.NewSource(3)))

	sawVariation := false
	for i := 0; i < 50 && !sawVariation; i++ {
		text, err := g.Generate(ctx, domain.CategoryGeneral, "post", "Jane Doe")
		require.NoError(t, err)
		if text == "Gorgeous - Love it, Jane." {
			sawVariation = true
		}
	}
	assert.True(t, sawVariation, "expected the lexical variation to appear within 50 draws")
}

func TestFirstName(t *testing.T) {
	cases := []struct {
		author string
		want   string
		ok     bool
	}{
		{"Maria Lopez", "Maria", true},
		{"Dr. Jane Smith", "Jane", true},
		{"Jean-Pierre Dubois", "Jean-Pierre", true},
		{"O'Brien", "O'Brien", true},
		{"Sponsored", "", false},
		{"Group Admin", "", false},
		{"X", "", false},
		{"", "", false},
		{"12345", "", false},
		{"Mr.", "", false},
	}
	for _, tc := range cases {
		got, ok := FirstName(tc.author)
		assert.Equal(t, tc.ok, ok, "author %q", tc.author)
		if tc.ok {
			assert.Equal(t, tc.want, got, "author %q", tc.author)
		}
	}
}
