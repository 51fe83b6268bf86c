package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageExtension(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		head        []byte
		want        string
	}{
		{name: "from url", url: "https://cdn.example/p/1.PNG?sig=abc", want: ".png"},
		{name: "jpeg kept", url: "https://cdn.example/p/1.jpeg", want: ".jpeg"},
		{name: "unknown url ext uses content type", url: "https://cdn.example/p/1.php", contentType: "image/webp", want: ".webp"},
		{name: "content type with params", url: "https://cdn.example/p/1", contentType: "image/jpeg; charset=binary", want: ".jpg"},
		{name: "sniffed", head: []byte("GIF89a......"), want: ".gif"},
		{name: "octet stream falls back to sniffing", contentType: "application/octet-stream", head: png("x"), want: ".png"},
		{name: "unknown", head: []byte("hello"), want: defaultExt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pageExtension(tt.url, tt.contentType, tt.head))
		})
	}
}

func TestPageName(t *testing.T) {
	assert.Equal(t, "0000.jpg", pageName(0, ".jpg"))
	assert.Equal(t, "0042.png", pageName(42, ".png"))
	assert.Equal(t, "12345.bin", pageName(12345, ".bin"))
}
