package s3

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echohealth/echo_backend/config"
)

func TestDocumentKey(t *testing.T) {
	id := uuid.New()
	key := DocumentKey(id, "../../License.PDF")

	assert.True(t, strings.HasPrefix(key, "documents/"+id.String()+"/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotContains(t, key, "..")
}

func TestPresignUploadIsLocal(t *testing.T) {
	c, err := New(context.Background(), config.S3Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		Bucket:          "echo-docs",
		PresignTTLSec:   60,
	})
	require.NoError(t, err)

	p, err := c.PresignUpload(context.Background(), "documents/x/y.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "PUT", p.Method)

	u, err := url.Parse(p.URL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/echo-docs/documents/x/y.pdf", u.Path)
	assert.Equal(t, "60", u.Query().Get("X-Amz-Expires"))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), config.S3Config{})
	require.Error(t, err)
}
