// Package analysis scores the received segments: a coarse carrier-to-noise
// estimate from the calibration tone, and the per-frame sync/SNR series
// reported by the demodulator.
package analysis

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/tmiw/radae-ota/pkg/audio"
	"github.com/tmiw/radae-ota/pkg/logging"
)

// fftSize is the analysis window for the tone estimate. At the 8 kHz link
// rate this is roughly one second of tone, ~1 Hz per bin.
const fftSize = 8192

// ToneCNo estimates the carrier-to-noise-density ratio (dB-Hz) of the
// received calibration tone. The carrier power is taken from the FFT bins
// around the expected tone frequency; everything else in the passband is
// treated as noise and averaged down to a per-Hz density.
func ToneCNo(tone *audio.Buffer, toneFreq float64) (float64, error) {
	if tone.Frames() < fftSize {
		return 0, fmt.Errorf("tone window too short: %d frames, need %d", tone.Frames(), fftSize)
	}

	samples := make([]float64, fftSize)
	for i := range samples {
		samples[i] = float64(tone.Samples[i])
	}

	spectrum := fft.FFTReal(samples)

	binHz := float64(tone.Rate) / fftSize
	toneBin := int(math.Round(toneFreq / binHz))
	if toneBin < 2 || toneBin >= fftSize/2-2 {
		return 0, fmt.Errorf("tone frequency %g Hz outside analysis passband", toneFreq)
	}

	// Carrier power: the expected bin plus one neighbor either side to
	// absorb frequency offset and spectral leakage.
	var carrier, total float64
	power := make([]float64, fftSize/2)
	for i := 0; i < fftSize/2; i++ {
		p := real(spectrum[i])*real(spectrum[i]) + imag(spectrum[i])*imag(spectrum[i])
		power[i] = p
		total += p
	}
	for i := toneBin - 1; i <= toneBin+1; i++ {
		carrier += power[i]
	}

	if carrier <= 0 || total <= carrier {
		return 0, fmt.Errorf("no measurable carrier at %g Hz: %w", toneFreq, audio.ErrDegenerateSignal)
	}

	// Noise density per Hz across the rest of the passband.
	noise := total - carrier
	noiseBandwidth := float64(fftSize/2-3) * binHz
	n0 := noise / noiseBandwidth

	cno := 10 * math.Log10(carrier/n0)
	logging.Infof("analysis", "Tone C/No estimate: %.1f dB-Hz (carrier bin %d, %.2f Hz/bin)", cno, toneBin, binHz)
	return cno, nil
}
