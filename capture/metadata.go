package capture

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Metadata describes the radio settings a capture was taken with.
type Metadata struct {
	CenterFreq uint64
	SampleRate float64
	LNAGain    int
	VGAGain    int
	TXVGAGain  int
	Amp        bool
	Source     string
	Started    time.Time
}

// Marshal encodes m as a protobuf google.protobuf.Struct.
func (m Metadata) Marshal() ([]byte, error) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"center_freq": m.CenterFreq,
		"sample_rate": m.SampleRate,
		"lna_gain":    m.LNAGain,
		"vga_gain":    m.VGAGain,
		"txvga_gain":  m.TXVGAGain,
		"amp":         m.Amp,
		"source":      m.Source,
		"started":     m.Started.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// UnmarshalMetadata decodes the output of Metadata.Marshal. Missing fields
// are left at their zero value.
func UnmarshalMetadata(data []byte) (Metadata, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Metadata{}, fmt.Errorf("capture: decoding metadata: %w", err)
	}
	f := s.GetFields()
	m := Metadata{
		CenterFreq: uint64(f["center_freq"].GetNumberValue()),
		SampleRate: f["sample_rate"].GetNumberValue(),
		LNAGain:    int(f["lna_gain"].GetNumberValue()),
		VGAGain:    int(f["vga_gain"].GetNumberValue()),
		TXVGAGain:  int(f["txvga_gain"].GetNumberValue()),
		Amp:        f["amp"].GetBoolValue(),
		Source:     f["source"].GetStringValue(),
	}
	if v := f["started"].GetStringValue(); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return Metadata{}, fmt.Errorf("capture: decoding start time: %w", err)
		}
		m.Started = t
	}
	return m, nil
}
