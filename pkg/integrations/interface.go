package integrations

// Transcoder converts a downloaded payload into the stored image format.
type Transcoder interface {
	Transcode(b []byte) ([]byte, error)
}

var _ Transcoder = (*ImageProcessor)(nil)
