package minio

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/testutil"
	pkgerrors "github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

type MockMinIOAPI struct {
	mock.Mock
}

func (m *MockMinIOAPI) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).([]minio.BucketInfo), args.Error(1)
}

func (m *MockMinIOAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinIOAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockMinIOAPI) SetBucketLifecycle(ctx context.Context, bucketName string, cfg *lifecycle.Configuration) error {
	return m.Called(ctx, bucketName, cfg).Error(0)
}

func (m *MockMinIOAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, _ := io.ReadAll(reader)
	args := m.Called(ctx, bucketName, objectName, string(data), objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockMinIOAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *MockMinIOAPI) PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expiry, reqParams)
	u, _ := args.Get(0).(*url.URL)
	return u, args.Error(1)
}

var testConfig = config.MinIOConfig{
	Enabled:  true,
	Endpoint: "localhost:9000",
	Bucket:   "openad-exports",
	Region:   "us-east-1",
}

type ClientTestSuite struct {
	suite.Suite
	api *MockMinIOAPI
	log *testutil.RecordingLogger
	ctx context.Context
}

func (s *ClientTestSuite) SetupTest() {
	s.api = new(MockMinIOAPI)
	s.log = testutil.NewRecordingLogger()
	s.ctx = context.Background()
}

func (s *ClientTestSuite) TearDownTest() {
	s.api.AssertExpectations(s.T())
}

func (s *ClientTestSuite) TestNewMinIOClient_ExistingBucket() {
	s.api.On("ListBuckets", s.ctx).Return([]minio.BucketInfo{{Name: "openad-exports"}}, nil)
	s.api.On("BucketExists", s.ctx, "openad-exports").Return(true, nil)

	c, err := newMinIOClient(s.ctx, s.api, testConfig, s.log)
	s.Require().NoError(err)
	s.Equal("openad-exports", c.Bucket())
	s.True(s.log.Has("info", "minio client connected"))
	s.api.AssertNotCalled(s.T(), "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ClientTestSuite) TestNewMinIOClient_CreatesBucket() {
	s.api.On("ListBuckets", s.ctx).Return([]minio.BucketInfo{}, nil)
	s.api.On("BucketExists", s.ctx, "openad-exports").Return(false, nil)
	s.api.On("MakeBucket", s.ctx, "openad-exports", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)
	s.api.On("SetBucketLifecycle", s.ctx, "openad-exports", mock.MatchedBy(func(c *lifecycle.Configuration) bool {
		return len(c.Rules) == 1 && c.Rules[0].Expiration.Days == defaultExportDays
	})).Return(errors.New("not implemented"))

	_, err := newMinIOClient(s.ctx, s.api, testConfig, s.log)
	s.Require().NoError(err)
	s.True(s.log.Has("info", "created bucket"))
	s.True(s.log.Has("warn", "failed to set lifecycle"))
}

func (s *ClientTestSuite) TestNewMinIOClient_Unreachable() {
	s.api.On("ListBuckets", s.ctx).Return([]minio.BucketInfo(nil), errors.New("connection refused"))

	_, err := newMinIOClient(s.ctx, s.api, testConfig, s.log)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeServiceUnavailable))
}

func (s *ClientTestSuite) TestNewMinIOClient_MakeBucketFails() {
	s.api.On("ListBuckets", s.ctx).Return([]minio.BucketInfo{}, nil)
	s.api.On("BucketExists", s.ctx, "openad-exports").Return(false, nil)
	s.api.On("MakeBucket", s.ctx, "openad-exports", mock.Anything).Return(errors.New("access denied"))

	_, err := newMinIOClient(s.ctx, s.api, testConfig, s.log)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeExternalService))
}

func (s *ClientTestSuite) TestNewMinIOClient_Validation() {
	_, err := NewMinIOClient(config.MinIOConfig{Endpoint: "localhost:9000"}, nil)
	s.True(pkgerrors.IsValidation(err))
}

func (s *ClientTestSuite) TestHealthCheck() {
	c := &MinIOClient{client: s.api, config: testConfig, logger: s.log}
	s.api.On("BucketExists", s.ctx, "openad-exports").Return(true, nil).Once()
	s.api.On("BucketExists", s.ctx, "openad-exports").Return(false, nil).Once()
	s.api.On("BucketExists", s.ctx, "openad-exports").Return(false, errors.New("timeout")).Once()

	status, err := c.HealthCheck(s.ctx)
	s.Require().NoError(err)
	s.True(status.Healthy)

	status, err = c.HealthCheck(s.ctx)
	s.Require().NoError(err)
	s.False(status.Healthy)
	s.Equal("bucket openad-exports missing", status.Error)

	status, err = c.HealthCheck(s.ctx)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeServiceUnavailable))
	s.Equal("timeout", status.Error)

	s.Require().NoError(c.Close())
	_, err = c.HealthCheck(s.ctx)
	s.Equal(ErrMinIOClientClosed, err)
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}
