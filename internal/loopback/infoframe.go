package loopback

import (
	"errors"
	"fmt"
	"strings"

	"audioloop/internal/fixture"
	"audioloop/internal/infoframe"
)

// ErrInfoFrameMismatch marks the metadata cross-check failing, as opposed
// to the audio signal itself being wrong.
var ErrInfoFrameMismatch = errors.New("audio InfoFrame mismatch")

// CheckInfoFrame compares the audio InfoFrame the fixture received against
// the playback configuration. The check is skipped when the fixture cannot
// report InfoFrames at all, and when no frame arrived for mono or stereo
// playback, where the frame is optional.
func (s *State) CheckInfoFrame() error {
	if !s.fix.SupportsInfoFrames() {
		s.debugf("skipping audio InfoFrame check: fixture cannot report InfoFrames")
		return nil
	}

	raw, err := s.fix.LastInfoFrame(s.port, fixture.InfoFrameAudio)
	if errors.Is(err, fixture.ErrNoInfoFrame) {
		if s.playback.Channels <= 2 {
			s.debugf("skipping audio InfoFrame check: no InfoFrame received")
			return nil
		}
		return fmt.Errorf("%w: no InfoFrame received for %d channels",
			ErrInfoFrameMismatch, s.playback.Channels)
	}
	if err != nil {
		return fmt.Errorf("loopback: querying last InfoFrame failed: %w", err)
	}

	observed, err := infoframe.Parse(raw.Version, raw.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInfoFrameMismatch, err)
	}

	expected := infoframe.Descriptor{
		CodingType:   infoframe.CodingPCM,
		ChannelCount: s.playback.Channels,
		SamplingFreq: s.playback.Rate,
		SampleSize:   s.playback.Format.Width(),
	}
	s.debugf("checking audio InfoFrame: got %+v, expected %+v", observed, expected)

	if mismatches := observed.Matches(expected); len(mismatches) > 0 {
		return fmt.Errorf("%w: %s", ErrInfoFrameMismatch, strings.Join(mismatches, "; "))
	}
	return nil
}
