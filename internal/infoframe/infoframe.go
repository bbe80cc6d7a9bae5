// Package infoframe decodes CEA-861 audio InfoFrame payloads and compares
// them against an expected playback configuration. Every field of the
// descriptor may carry an "unspecified" sentinel ("refer to stream header"
// in the spec), which makes the comparison partial: unspecified observed
// fields are skipped rather than treated as mismatches.
package infoframe

import "fmt"

// CodingType is the audio coding type of an InfoFrame descriptor.
type CodingType int

const (
	CodingUnspecified CodingType = iota
	CodingPCM
	CodingAC3
	CodingMPEG1
	CodingMP3
	CodingMPEG2
	CodingAACLC
	CodingDTS
	CodingATRAC
)

var codingNames = map[CodingType]string{
	CodingUnspecified: "unspecified",
	CodingPCM:         "PCM",
	CodingAC3:         "AC-3",
	CodingMPEG1:       "MPEG-1",
	CodingMP3:         "MP3",
	CodingMPEG2:       "MPEG-2",
	CodingAACLC:       "AAC LC",
	CodingDTS:         "DTS",
	CodingATRAC:       "ATRAC",
}

func (ct CodingType) String() string {
	if name, ok := codingNames[ct]; ok {
		return name
	}
	return fmt.Sprintf("CodingType(%d)", int(ct))
}

// Unspecified marks numeric descriptor fields the frame did not carry.
const Unspecified = -1

// Descriptor is the decoded content of an audio InfoFrame. ChannelCount,
// SamplingFreq (Hz) and SampleSize (bits) are Unspecified when the frame
// defers to the stream header.
type Descriptor struct {
	CodingType   CodingType
	ChannelCount int
	SamplingFreq int
	SampleSize   int
}

var samplingFreqs = [8]int{Unspecified, 32000, 44100, 48000, 88200, 96000, 176400, 192000}
var sampleSizes = [4]int{Unspecified, 16, 20, 24}

// Parse decodes an audio InfoFrame payload of the given version. Only
// version 1 frames are defined for audio.
func Parse(version int, payload []byte) (Descriptor, error) {
	if version != 1 {
		return Descriptor{}, fmt.Errorf("unsupported audio InfoFrame version %d", version)
	}
	if len(payload) < 5 {
		return Descriptor{}, fmt.Errorf("audio InfoFrame payload too short: %d bytes", len(payload))
	}

	d := Descriptor{
		CodingType:   CodingType(payload[0] >> 4 & 0xF),
		ChannelCount: int(payload[0] & 0x7),
		SamplingFreq: samplingFreqs[payload[1]>>2&0x7],
		SampleSize:   sampleSizes[payload[1]&0x3],
	}
	if d.ChannelCount == 0 {
		d.ChannelCount = Unspecified
	} else {
		d.ChannelCount++
	}
	if d.CodingType > CodingATRAC {
		return Descriptor{}, fmt.Errorf("unknown audio coding type %d", int(d.CodingType))
	}
	return d, nil
}

// Matches compares the observed descriptor d against expected and returns
// one message per mismatching field. Fields that are unspecified in d are
// skipped, so a fully unspecified frame always matches.
func (d Descriptor) Matches(expected Descriptor) []string {
	var mismatches []string
	if d.CodingType != CodingUnspecified && d.CodingType != expected.CodingType {
		mismatches = append(mismatches, fmt.Sprintf("coding type: got %s, expected %s",
			d.CodingType, expected.CodingType))
	}
	if d.ChannelCount != Unspecified && d.ChannelCount != expected.ChannelCount {
		mismatches = append(mismatches, fmt.Sprintf("channel count: got %d, expected %d",
			d.ChannelCount, expected.ChannelCount))
	}
	if d.SamplingFreq != Unspecified && d.SamplingFreq != expected.SamplingFreq {
		mismatches = append(mismatches, fmt.Sprintf("sampling frequency: got %d Hz, expected %d Hz",
			d.SamplingFreq, expected.SamplingFreq))
	}
	if d.SampleSize != Unspecified && d.SampleSize != expected.SampleSize {
		mismatches = append(mismatches, fmt.Sprintf("sample size: got %d bits, expected %d bits",
			d.SampleSize, expected.SampleSize))
	}
	return mismatches
}
