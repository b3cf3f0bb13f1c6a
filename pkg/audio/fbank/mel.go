package fbank

import "math"

// makeWindow generates an analysis window of length n.
func makeWindow(kind WindowType, n int) []float64 {
	w := make([]float64, n)
	a := 2 * math.Pi / float64(n-1)
	for i := range w {
		hann := 0.5 - 0.5*math.Cos(a*float64(i))
		switch kind {
		case WindowHamming:
			w[i] = 0.54 - 0.46*math.Cos(a*float64(i))
		case WindowHann:
			w[i] = hann
		default:
			w[i] = math.Pow(hann, 0.85)
		}
	}
	return w
}

// hzToMel converts frequency in Hz to the Kaldi mel scale.
func hzToMel(hz float64) float64 {
	return 1127.0 * math.Log(1.0+hz/700.0)
}

// melToHz converts a Kaldi mel value back to Hz.
func melToHz(mel float64) float64 {
	return 700.0 * (math.Exp(mel/1127.0) - 1.0)
}

// melFilter is one triangular filter stored sparsely from its first
// non-zero FFT bin.
type melFilter struct {
	offset  int
	weights []float64
}

func (f melFilter) apply(power []float64) float64 {
	var sum float64
	for i, w := range f.weights {
		sum += w * power[f.offset+i]
	}
	return sum
}

// melFilterBank builds triangular filters evaluated on the mel scale at each
// FFT bin centre, the way Kaldi does. The Nyquist bin is excluded.
func melFilterBank(numMels, fftSize, sampleRate int, lowFreq, highFreq float64) []melFilter {
	numBins := fftSize / 2
	binWidth := float64(sampleRate) / float64(fftSize)
	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)
	delta := (highMel - lowMel) / float64(numMels+1)

	bank := make([]melFilter, numMels)
	for m := range bank {
		left := lowMel + float64(m)*delta
		center := left + delta
		right := center + delta

		first, last := -1, -1
		weights := make([]float64, numBins)
		for k := range numBins {
			mel := hzToMel(binWidth * float64(k))
			if mel <= left || mel >= right {
				continue
			}
			if mel <= center {
				weights[k] = (mel - left) / (center - left)
			} else {
				weights[k] = (right - mel) / (right - center)
			}
			if first < 0 {
				first = k
			}
			last = k
		}
		if first < 0 {
			// Degenerate filter narrower than one bin; keep it empty.
			bank[m] = melFilter{}
			continue
		}
		bank[m] = melFilter{offset: first, weights: weights[first : last+1]}
	}
	return bank
}
