package media

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"image/png":                KindImage,
		"image/JPEG":               KindImage,
		"image/jpg":                KindImage,
		"image/gif":                KindImage,
		"image/webp":               KindImage,
		"image/svg+xml":            KindRejected,
		"image/bmp":                KindRejected,
		"video/mp4":                KindVideo,
		"video/quicktime":          KindVideo,
		"video/x-matroska":         KindVideo,
		"video/ogg; codecs=theora": KindVideo,
		"video/":                   KindRejected,
		"application/pdf":          KindRejected,
		"":                         KindRejected,
		"text/plain":               KindRejected,
	}
	for input, want := range cases {
		assert.Equal(t, want, Classify(input), "classify %q", input)
	}
}

func TestPolicyCheck(t *testing.T) {
	p := Policy{MaxImageBytes: 10 << 20, MaxVideoBytes: 50 << 20}

	kind, err := p.Check("image/png", 10<<20)
	require.NoError(t, err)
	assert.Equal(t, KindImage, kind)

	_, err = p.Check("image/png", 10<<20+1)
	var sizeErr *SizeError
	require.True(t, errors.As(err, &sizeErr))
	assert.Equal(t, int64(10<<20), sizeErr.Limit)
	assert.Equal(t, "image exceeds size limit of 10 MiB", sizeErr.Error())

	_, err = p.Check("video/mp4", 40<<20)
	assert.NoError(t, err)

	_, err = p.Check("application/pdf", 1)
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "10 MiB", FormatSize(10<<20))
	assert.Equal(t, "1.5 KiB", FormatSize(1536))
}
