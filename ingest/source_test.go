package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/trialdb/trial"
)

type fakeS3 struct {
	objects map[string]string
	calls   []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	k := *in.Bucket + "/" + *in.Key
	f.calls = append(f.calls, k)
	body, ok := f.objects[k]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestSource_ReadS3(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{
		"trials/2025/cell-count.csv": header + "prj1,sbj1,melanoma,45,M,tr1,y,s1,PBMC,0,1,2,3,4,5\n",
	}}
	src := NewSourceWithClient(fake)

	rows, err := src.Read(context.Background(), "s3://trials/2025/cell-count.csv")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"trials/2025/cell-count.csv"}, fake.calls)
}

func TestSource_S3MissingObject(t *testing.T) {
	src := NewSourceWithClient(&fakeS3{})

	_, err := src.Read(context.Background(), "s3://trials/missing.csv")
	assert.ErrorIs(t, err, trial.ErrConfiguration)
}

func TestSource_InvalidS3Location(t *testing.T) {
	src := NewSourceWithClient(&fakeS3{})

	_, err := src.Open(context.Background(), "s3://bucket-only")
	assert.ErrorIs(t, err, trial.ErrConfiguration)
}

func TestSource_MissingLocalFile(t *testing.T) {
	_, err := NewSource(S3Options{}).Open(context.Background(), "does-not-exist.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, trial.ErrConfiguration))
}
