package peakfit

// FindOptions filters the candidate maxima returned by FindPeaks.
type FindOptions struct {
	// MinHeight drops maxima below this count level. Default 0.
	MinHeight float64

	// MinProminence drops maxima that rise less than this above the higher
	// of the two surrounding valleys. Default 0.
	MinProminence float64

	// MinDistance drops the smaller of two maxima closer than this many
	// channels. Default 1.
	MinDistance int
}

// FindPeaks locates local maxima in counts and returns their channel
// indices in ascending order. Plateaus report their center channel.
func FindPeaks(counts []float64, opts FindOptions) []int {
	if opts.MinDistance < 1 {
		opts.MinDistance = 1
	}

	candidates := localMaxima(counts)

	if opts.MinHeight > 0 {
		kept := candidates[:0]

		for _, i := range candidates {
			if counts[i] >= opts.MinHeight {
				kept = append(kept, i)
			}
		}

		candidates = kept
	}

	if opts.MinProminence > 0 {
		kept := candidates[:0]

		for _, i := range candidates {
			if prominence(counts, i) >= opts.MinProminence {
				kept = append(kept, i)
			}
		}

		candidates = kept
	}

	if opts.MinDistance > 1 {
		candidates = enforceDistance(counts, candidates, opts.MinDistance)
	}

	return candidates
}

func localMaxima(counts []float64) []int {
	var peaks []int

	n := len(counts)
	i := 1

	for i < n-1 {
		if counts[i] <= counts[i-1] {
			i++
			continue
		}

		// Walk across a possible plateau.
		j := i
		for j < n-1 && counts[j+1] == counts[i] {
			j++
		}

		if j < n-1 && counts[j+1] < counts[i] {
			peaks = append(peaks, (i+j)/2)
		}

		i = j + 1
	}

	return peaks
}

// prominence measures how far the peak rises above the higher of the two
// lowest valleys separating it from taller terrain or the signal edge.
func prominence(counts []float64, peak int) float64 {
	h := counts[peak]

	leftMin := h
	for i := peak - 1; i >= 0; i-- {
		if counts[i] > h {
			break
		}

		if counts[i] < leftMin {
			leftMin = counts[i]
		}
	}

	rightMin := h
	for i := peak + 1; i < len(counts); i++ {
		if counts[i] > h {
			break
		}

		if counts[i] < rightMin {
			rightMin = counts[i]
		}
	}

	base := leftMin
	if rightMin > base {
		base = rightMin
	}

	return h - base
}

// enforceDistance keeps the tallest peak of any group closer than minDist
// channels, scanning in descending height order.
func enforceDistance(counts []float64, peaks []int, minDist int) []int {
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}

	// Insertion sort by height descending; peak lists are short.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && counts[peaks[order[j]]] > counts[peaks[order[j-1]]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	removed := make([]bool, len(peaks))

	for _, oi := range order {
		if removed[oi] {
			continue
		}

		for j := range peaks {
			if j == oi || removed[j] {
				continue
			}

			d := peaks[j] - peaks[oi]
			if d < 0 {
				d = -d
			}

			if d < minDist {
				removed[j] = true
			}
		}
	}

	kept := peaks[:0]

	for i, p := range peaks {
		if !removed[i] {
			kept = append(kept, p)
		}
	}

	return kept
}
