package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
)

func TestCloudinaryPublicID(t *testing.T) {
	cases := map[string]string{
		"https://res.cloudinary.com/demo/image/upload/v1712/avatars/a.webp": "avatars/a",
		"https://res.cloudinary.com/demo/image/upload/chat/x/b.jpg":         "chat/x/b",
		"https://res.cloudinary.com/demo/image/upload/video.webp":           "video",
		"https://example.com/nothing/here.png":                              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, cloudinaryPublicID(in), in)
	}
}

func TestS3KeyFromURL(t *testing.T) {
	s := &s3Storage{bucket: "b", publicURL: "https://cdn.example.com"}
	assert.Equal(t, "avatars/1.png", s.keyFromURL("https://cdn.example.com/avatars/1.png"))
	assert.Equal(t, "chat/2.jpg", s.keyFromURL("https://b.s3.eu-west-1.amazonaws.com/chat/2.jpg"))

	key := s3ObjectKey("/avatars/", "Me.PNG")
	assert.True(t, strings.HasPrefix(key, "avatars/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
}

func TestValidateImage(t *testing.T) {
	ok := &Upload{Reader: strings.NewReader("x"), FileName: "a.JPG", Size: 10}
	assert.NoError(t, ValidateImage(ok))

	assert.ErrorIs(t, ValidateImage(nil), apperror.ErrValidation)
	assert.ErrorIs(t, ValidateImage(&Upload{Reader: strings.NewReader("x"), FileName: "a.exe"}), apperror.ErrValidation)
	assert.ErrorIs(t, ValidateImage(&Upload{Reader: strings.NewReader("x"), FileName: "a.png", Size: MaxImageSize + 1}), apperror.ErrValidation)
}
