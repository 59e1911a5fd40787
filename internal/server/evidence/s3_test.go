package evidence

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
)

type fakeS3 struct {
	s3API
	puts   []*s3.PutObjectInput
	bodies map[string]string
	putErr error
	getErr error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, in)
	b, _ := io.ReadAll(in.Body)
	if f.bodies == nil {
		f.bodies = map[string]string{}
	}
	f.bodies[aws.ToString(in.Key)] = string(b)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.bodies[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body)), ContentType: aws.String("image/jpeg")}, nil
}

type fakePresigner struct {
	got     *s3.GetObjectInput
	expires time.Duration
	err     error
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.got = in
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	f.expires = o.Expires
	return &v4.PresignedHTTPRequest{URL: "https://minio.local/" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key) + "?sig=1"}, nil
}

func TestS3Store_PutGet(t *testing.T) {
	api := &fakeS3{}
	s := newS3Store(api, &fakePresigner{}, "evidencias", 0)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "sessoes/1/a.jpg", []byte("jpeg"), "image/jpeg"))
	require.Len(t, api.puts, 1)
	assert.Equal(t, "evidencias", aws.ToString(api.puts[0].Bucket))
	assert.Equal(t, "image/jpeg", aws.ToString(api.puts[0].ContentType))

	rc, ct, err := s.Get(ctx, "sessoes/1/a.jpg")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "jpeg", string(b))
	assert.Equal(t, "image/jpeg", ct)

	_, _, err = s.Get(ctx, "sessoes/1/none.jpg")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestS3Store_Errors(t *testing.T) {
	boom := errors.New("boom")
	s := newS3Store(&fakeS3{putErr: boom, getErr: boom}, &fakePresigner{err: boom}, "b", time.Minute)
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, "k", nil, ""), boom)
	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)
	_, err = s.URL(ctx, "k")
	assert.ErrorIs(t, err, boom)
	_, err = s.URL(ctx, "/abs")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestS3Store_URLPresigns(t *testing.T) {
	p := &fakePresigner{}
	s := newS3Store(&fakeS3{}, p, "evidencias", 5*time.Minute)

	u, err := s.URL(context.Background(), "sessoes/2/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/evidencias/sessoes/2/x.jpg?sig=1", u)
	assert.Equal(t, 5*time.Minute, p.expires)
	assert.Equal(t, DriverS3, s.Driver())
}

func TestNewS3Store_DefaultTTL(t *testing.T) {
	s := newS3Store(&fakeS3{}, &fakePresigner{}, "b", 0)
	assert.Equal(t, 15*time.Minute, s.ttl)
}

func TestNewS3Store_Config(t *testing.T) {
	orig := loadDefaultAWSConfig
	defer func() { loadDefaultAWSConfig = orig }()

	var region string
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		var lo config.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		region = lo.Region
		assert.NotNil(t, lo.Credentials)
		return aws.Config{Region: lo.Region}, nil
	}

	s, err := NewS3Store(context.Background(), Config{
		Bucket: "evidencias", Endpoint: "http://127.0.0.1:9000/",
		AccessKey: "admin", SecretKey: "secretpassword",
	})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", region)
	assert.Equal(t, "evidencias", s.bucket)

	_, err = NewS3Store(context.Background(), Config{})
	require.Error(t, err)

	loadDefaultAWSConfig = func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}
	_, err = NewS3Store(context.Background(), Config{Bucket: "b"})
	require.Error(t, err)
}
