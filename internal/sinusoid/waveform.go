package sinusoid

// sineTable holds one sine cycle sampled every 6 degrees.
var sineTable = [...]float64{
	0.0,
	0.104528463,
	0.207911691,
	0.309016994,
	0.406736643,
	0.5,
	0.587785252,
	0.669130606,
	0.743144825,
	0.809016994,
	0.866025404,
	0.913545458,
	0.951056516,
	0.978147601,
	0.994521895,
	1.0,
	0.994521895,
	0.978147601,
	0.951056516,
	0.913545458,
	0.866025404,
	0.809016994,
	0.743144825,
	0.669130606,
	0.587785252,
	0.5,
	0.406736643,
	0.309016994,
	0.207911691,
	0.104528463,
	1.22515e-16,
	-0.104528463,
	-0.207911691,
	-0.309016994,
	-0.406736643,
	-0.5,
	-0.587785252,
	-0.669130606,
	-0.743144825,
	-0.809016994,
	-0.866025404,
	-0.913545458,
	-0.951056516,
	-0.978147601,
	-0.994521895,
	-1.0,
	-0.994521895,
	-0.978147601,
	-0.951056516,
	-0.913545458,
	-0.866025404,
	-0.809016994,
	-0.743144825,
	-0.669130606,
	-0.587785252,
	-0.5,
	-0.406736643,
	-0.309016994,
	-0.207911691,
	-0.104528463,
}

// WaveformLen is the number of samples in one waveform cycle.
const WaveformLen = len(sineTable)

// Waveform walks the sine table cyclically. The zero value is not ready for
// use; call NewWaveform.
type Waveform struct {
	index int
}

// NewWaveform returns a generator positioned before the first sample.
func NewWaveform() *Waveform {
	return &Waveform{index: -1}
}

// Next advances to the following sample and returns it, wrapping back to the
// start of the table after the last entry.
func (w *Waveform) Next() float64 {
	if w.index >= WaveformLen-1 {
		w.index = -1
	}
	w.index++
	return sineTable[w.index]
}

// Index is the position of the most recently returned sample, or -1 before
// the first call to Next.
func (w *Waveform) Index() int {
	return w.index
}
