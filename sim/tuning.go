package sim

// Ranges follow the HackRF One front end.
const (
	maxFreqHz     = 7250000000
	minFreqHz     = 1000000
	minSampleRate = 2e6
	maxSampleRate = 20e6
	maxLNAGain    = 40
	maxVGAGain    = 62
	maxTXVGAGain  = 47
)

func (d *Device) SetFreq(freqHz uint64) error {
	if freqHz < minFreqHz || freqHz > maxFreqHz {
		return ErrParam
	}
	d.mu.Lock()
	d.freq = freqHz
	d.mu.Unlock()
	return nil
}

// SetSampleRate takes effect on the next stream start.
func (d *Device) SetSampleRate(freqHz float64) error {
	if freqHz < minSampleRate || freqHz > maxSampleRate {
		return ErrParam
	}
	d.mu.Lock()
	d.sampleRate = freqHz
	d.mu.Unlock()
	return nil
}

func (d *Device) SetBasebandFilterBandwidth(hz int) error {
	if hz <= 0 {
		return ErrParam
	}
	d.mu.Lock()
	d.bbFilter = hz
	d.mu.Unlock()
	return nil
}

func (d *Device) SetAmpEnable(value bool) error {
	d.mu.Lock()
	d.amp = value
	d.mu.Unlock()
	return nil
}

func (d *Device) SetAntennaEnable(value bool) error {
	d.mu.Lock()
	d.antenna = value
	d.mu.Unlock()
	return nil
}

// SetLNAGain accepts 0-40 dB in 8 dB steps.
func (d *Device) SetLNAGain(value int) error {
	if value < 0 || value > maxLNAGain || value%8 != 0 {
		return ErrParam
	}
	d.mu.Lock()
	d.lnaGain = value
	d.mu.Unlock()
	return nil
}

// SetVGAGain accepts 0-62 dB in 2 dB steps.
func (d *Device) SetVGAGain(value int) error {
	if value < 0 || value > maxVGAGain || value%2 != 0 {
		return ErrParam
	}
	d.mu.Lock()
	d.vgaGain = value
	d.mu.Unlock()
	return nil
}

// SetTXVGAGain accepts 0-47 dB.
func (d *Device) SetTXVGAGain(value int) error {
	if value < 0 || value > maxTXVGAGain {
		return ErrParam
	}
	d.mu.Lock()
	d.txvgaGain = value
	d.mu.Unlock()
	return nil
}

// Tuning reports the current settings.
type Tuning struct {
	Freq       uint64
	SampleRate float64
	BBFilter   int
	Amp        bool
	Antenna    bool
	LNAGain    int
	VGAGain    int
	TXVGAGain  int
}

func (d *Device) Tuning() Tuning {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Tuning{
		Freq:       d.freq,
		SampleRate: d.sampleRate,
		BBFilter:   d.bbFilter,
		Amp:        d.amp,
		Antenna:    d.antenna,
		LNAGain:    d.lnaGain,
		VGAGain:    d.vgaGain,
		TXVGAGain:  d.txvgaGain,
	}
}
