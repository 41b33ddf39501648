package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amala-atlas/discovery-cli/internal/model"
	"github.com/amala-atlas/discovery-cli/pkg/geocode"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Amala Palace", "amala palace"},
		{"AMALA PALACE", "amala palace"},
		{"Iya Basira Restaurant", "iya basira"},
		{"Iya Basira Spot", "iya basira"},
		{"Iya Basira Amala Joint", "iya basira amala"},
		{"Mama's Kitchen!", "mama s"},
		{"Café Amalà", "cafe amala"},
		{"  White   House  Buka ", "white house"},
		{"Restaurant", "restaurant"},
		{"The Place", "the"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestKeyWithoutGeocoder(t *testing.T) {
	d := New(nil, nil)
	ctx := context.Background()

	k1 := d.Key(ctx, "Amala Palace", "12 Example Street, Lagos, Nigeria")
	k2 := d.Key(ctx, "Amala Palace Restaurant", "Another Road, Lagos, Nigeria")
	assert.Equal(t, k1, k2)

	k3 := d.Key(ctx, "Amala Palace", "5 Ring Road, Ibadan")
	assert.NotEqual(t, k1, k3)

	assert.Equal(t, Key("amala palace|"), d.Key(ctx, "Amala Palace", ""))
}

func TestKeySymmetric(t *testing.T) {
	d := New(nil, nil)
	ctx := context.Background()
	a := d.Key(ctx, "Ìyá Básìrà Spot", "10 Bode Thomas, Surulere, Lagos")
	b := d.Key(ctx, "iya basira restaurant", "22 Ojuelegba Rd, LAGOS")
	assert.Equal(t, a, b)
}

type stubGeocoder struct {
	localities map[string]string
}

func (s *stubGeocoder) Geocode(ctx context.Context, address string) *geocode.Result {
	return &geocode.Result{Matched: false}
}

func (s *stubGeocoder) BatchGeocode(ctx context.Context, addresses []string, delay time.Duration) []geocode.Result {
	return make([]geocode.Result, len(addresses))
}

func (s *stubGeocoder) Locality(ctx context.Context, address string) string {
	return s.localities[address]
}

func TestKeyPrefersGeocoderLocality(t *testing.T) {
	d := New(&stubGeocoder{localities: map[string]string{
		"10 Bode Thomas Street": "Surulere",
	}}, nil)
	ctx := context.Background()

	assert.Equal(t, Key("amala palace|surulere"), d.Key(ctx, "Amala Palace", "10 Bode Thomas Street"))
	// Unknown address falls back to the last comma segment.
	assert.Equal(t, Key("amala palace|ikeja"), d.Key(ctx, "Amala Palace", "1 Allen Ave, Ikeja"))
}

func TestSimilar(t *testing.T) {
	assert.True(t, Similar("Amala Palace", "Amala Palace Restaurant"))
	assert.True(t, Similar("Ìyá Básìrà", "Iya Basira Spot"))
	assert.True(t, Similar("Amala Sky Lounge", "Amala Sky"))
	assert.False(t, Similar("Amala Palace", "Olaiya Foods"))
	assert.False(t, Similar("", "Amala Palace"))
}

func scored(name, address, source string) model.ScoredCandidate {
	return model.ScoredCandidate{
		RawCandidate: model.RawCandidate{
			Name:       name,
			Address:    address,
			SourceName: source,
		},
		Confidence: 80,
	}
}

func TestPartitionAgainstSnapshots(t *testing.T) {
	d := New(nil, nil)
	ctx := context.Background()

	snaps := model.Snapshots{
		Canonical: []model.NameAddress{{Name: "Amala Palace", Address: "12 Example Street, Lagos"}},
		Pending:   []model.NameAddress{{Name: "Olaiya Foods", Address: "1 Olaiya Junction, Surulere, Lagos"}},
		Rejected:  []model.NameAddress{{Name: "Fake Buka", Address: "9 Nowhere Road, Lagos"}},
	}

	candidates := []model.ScoredCandidate{
		scored("Amala Palace Restaurant", "Somewhere Else, Lagos", "blog-a"), // canonical hit
		scored("Olaiya Foods", "1 Olaiya Junction, Surulere, Lagos", "blog-a"),
		scored("Fake Buka Spot", "9 Nowhere Road, Lagos", "blog-b"), // rejected hit
		scored("New Amala Kitchen", "3 Fresh Street, Lagos", "blog-b"),
	}

	fresh, dups := d.Partition(ctx, candidates, snaps)
	require.Len(t, fresh, 1)
	assert.Equal(t, "New Amala Kitchen", fresh[0].Name)
	assert.Len(t, dups, 3)
}

func TestPartitionCollapsesWithinBatch(t *testing.T) {
	d := New(nil, nil)
	ctx := context.Background()

	candidates := []model.ScoredCandidate{
		scored("Amala Palace", "12 Example Street, Lagos", "blog-a"),
		scored("Amala Palace Spot", "12 Example St, Lagos", "blog-b"),
	}

	fresh, dups := d.Partition(ctx, candidates, model.Snapshots{})
	require.Len(t, fresh, 1)
	assert.Equal(t, "blog-a", fresh[0].SourceName, "first seen wins")
	require.Len(t, dups, 1)
	assert.Equal(t, "blog-b", dups[0].SourceName)
}

func TestPartitionOrderIndependentIdentity(t *testing.T) {
	d := New(nil, nil)
	ctx := context.Background()

	a := scored("Amala Palace", "12 Example Street, Lagos", "blog-a")
	b := scored("Amala Palace Joint", "Other Road, Lagos", "blog-b")

	fresh1, _ := d.Partition(ctx, []model.ScoredCandidate{a, b}, model.Snapshots{})
	fresh2, _ := d.Partition(ctx, []model.ScoredCandidate{b, a}, model.Snapshots{})
	assert.Len(t, fresh1, 1)
	assert.Len(t, fresh2, 1)
}

func TestPartitionEmptyInputs(t *testing.T) {
	d := New(nil, nil)
	fresh, dups := d.Partition(context.Background(), nil, model.Snapshots{})
	assert.Empty(t, fresh)
	assert.Empty(t, dups)
}
