package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/cwbudde/algo-xrf/internal/testutil"
	"github.com/cwbudde/algo-xrf/specfit"
	"github.com/cwbudde/algo-xrf/spectrum"
	"github.com/cwbudde/algo-xrf/xline"
)

var batchSource = xline.Static{
	"Fe": {{Element: "Fe", Line: "Ka1", EnergyKeV: 6.404, RelativeRate: 100}},
}

func feSpectrum(t *testing.T, height float64) spectrum.Spectrum {
	t.Helper()

	energy, counts := testutil.Synthetic(0.02, 0.01, 1000, 50, []testutil.Line{
		{Center: 6.404, FWHM: 0.18, Height: height},
	})

	spec, err := spectrum.New(energy, counts)
	if err != nil {
		t.Fatalf("spectrum.New() error = %v", err)
	}

	return spec
}

func TestProcessOrderAndIsolation(t *testing.T) {
	good := feSpectrum(t, 4000)

	jobs := []Job{
		{ID: "a", Spectrum: good, Elements: []string{"Fe"}},
		{ID: "b", Spectrum: good, Elements: []string{"Uub"}}, // unknown element
		{ID: "c", Spectrum: good, Elements: []string{"Fe"}},
	}

	cfg := Config{
		Fit:     specfit.Config{Source: batchSource},
		Workers: 2,
	}

	outcomes := Process(context.Background(), jobs, cfg)

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}

	for i, id := range []string{"a", "b", "c"} {
		if outcomes[i].ID != id {
			t.Fatalf("outcome %d has ID %q, want %q", i, outcomes[i].ID, id)
		}
	}

	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Fatalf("good jobs failed: %v, %v", outcomes[0].Err, outcomes[2].Err)
	}

	if outcomes[1].Err == nil {
		t.Fatal("job with unknown element did not fail")
	}

	if len(outcomes[0].Result.Peaks) != 1 {
		t.Fatalf("job a fitted %d peaks, want 1", len(outcomes[0].Result.Peaks))
	}
}

func TestProcessCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := []Job{
		{ID: "a", Spectrum: feSpectrum(t, 4000), Elements: []string{"Fe"}},
		{ID: "b", Spectrum: feSpectrum(t, 4000), Elements: []string{"Fe"}},
	}

	cfg := Config{Fit: specfit.Config{Source: batchSource}, Workers: 1}

	outcomes := Process(ctx, jobs, cfg)

	canceled := 0

	for _, o := range outcomes {
		if errors.Is(o.Err, ErrCanceled) {
			canceled++
		}
	}

	if canceled == 0 {
		t.Fatal("no job reported ErrCanceled after cancellation")
	}
}

func TestProcessEmpty(t *testing.T) {
	outcomes := Process(context.Background(), nil, Config{})
	if len(outcomes) != 0 {
		t.Fatalf("got %d outcomes for empty batch", len(outcomes))
	}
}
