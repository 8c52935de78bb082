// Package audioinfo probes audio files for basic stream properties.
//
// Enrollment records the duration of the sample a profile was built from.
// The probe is best-effort: a file the prober cannot parse yields an error
// that callers treat as "duration unknown", never as a fatal condition.
package audioinfo

// Prober reports the playable duration of an audio file in seconds.
type Prober interface {
	// Duration returns the duration of the audio file at path in seconds.
	// An error means the duration could not be determined; it does not imply
	// the file is unusable for embedding extraction.
	Duration(path string) (float64, error)
}
