package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
	"github.com/fonsecaaso/shortlink/go-server/internal/repository"
)

// MockURLRepository is a mock implementation of URLRepository
type MockURLRepository struct {
	mock.Mock
}

func (m *MockURLRepository) Insert(ctx context.Context, url *model.URL) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockURLRepository) FindByCode(ctx context.Context, code string) (*model.URL, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.URL), args.Error(1)
}

func (m *MockURLRepository) FindByID(ctx context.Context, id string) (*model.URL, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.URL), args.Error(1)
}

func (m *MockURLRepository) FindAll(ctx context.Context) ([]model.URL, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.URL), args.Error(1)
}

func (m *MockURLRepository) IncrementClicks(ctx context.Context, code string) (*model.URL, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.URL), args.Error(1)
}

func (m *MockURLRepository) Update(ctx context.Context, code string, update model.URLUpdate) (*model.URL, error) {
	args := m.Called(ctx, code, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.URL), args.Error(1)
}

func (m *MockURLRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

// sequenceGenerator hands out codes in order and remembers its inputs
type sequenceGenerator struct {
	codes  []string
	inputs []string
}

func (g *sequenceGenerator) Generate(input string, length int) string {
	g.inputs = append(g.inputs, input)
	code := g.codes[0]
	if len(g.codes) > 1 {
		g.codes = g.codes[1:]
	}
	return code
}

func strPtr(s string) *string { return &s }

func setupService(t *testing.T, codes ...string) (*URLService, *MockURLRepository, *sequenceGenerator) {
	// Initialize logger for tests
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	if len(codes) == 0 {
		codes = []string{"abc123"}
	}
	gen := &sequenceGenerator{codes: codes}
	mockRepo := new(MockURLRepository)
	service := NewURLService(mockRepo, gen)

	return service, mockRepo, gen
}

func TestNewURLService(t *testing.T) {
	mockRepo := new(MockURLRepository)
	service := NewURLService(mockRepo, &sequenceGenerator{codes: []string{"x"}})

	assert.NotNil(t, service.repo)
	assert.NotNil(t, service.logger)
	assert.Equal(t, 6, service.codeLength)
	assert.Equal(t, defaultMaxAttempts, service.maxAttempts)
}

func TestNewURLService_Options(t *testing.T) {
	testCases := []struct {
		name         string
		opts         []Option
		wantLength   int
		wantAttempts int
	}{
		{"valid values", []Option{WithCodeLength(8), WithMaxAttempts(3)}, 8, 3},
		{"length too short ignored", []Option{WithCodeLength(2)}, 6, defaultMaxAttempts},
		{"length too long ignored", []Option{WithCodeLength(11)}, 6, defaultMaxAttempts},
		{"zero attempts ignored", []Option{WithMaxAttempts(0)}, 6, defaultMaxAttempts},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			service := NewURLService(new(MockURLRepository), &sequenceGenerator{codes: []string{"x"}}, tc.opts...)
			assert.Equal(t, tc.wantLength, service.codeLength)
			assert.Equal(t, tc.wantAttempts, service.maxAttempts)
		})
	}
}

func TestCreateURL_Success_GeneratedCode(t *testing.T) {
	service, mockRepo, gen := setupService(t, "abc123")
	ctx := context.Background()

	mockRepo.On("Insert", mock.Anything, mock.MatchedBy(func(u *model.URL) bool {
		return u.OriginalURL == "https://example.com" && u.ShortCode == "abc123"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*model.URL).ID = "id-1"
	}).Return(nil).Once()

	url, err := service.CreateURL(ctx, "https://example.com", "")

	require.NoError(t, err)
	assert.Equal(t, "id-1", url.ID)
	assert.Equal(t, "abc123", url.ShortCode)
	assert.Equal(t, []string{"https://example.com"}, gen.inputs)
	mockRepo.AssertExpectations(t)
}

func TestCreateURL_RetriesOnCollision(t *testing.T) {
	service, mockRepo, gen := setupService(t, "taken1", "taken2", "free01")
	ctx := context.Background()

	mockRepo.On("Insert", mock.Anything, mock.MatchedBy(func(u *model.URL) bool { return u.ShortCode != "free01" })).
		Return(repository.ErrCodeConflict).Twice()
	mockRepo.On("Insert", mock.Anything, mock.MatchedBy(func(u *model.URL) bool { return u.ShortCode == "free01" })).
		Return(nil).Once()

	url, err := service.CreateURL(ctx, "https://example.com", "")

	require.NoError(t, err)
	assert.Equal(t, "free01", url.ShortCode)
	assert.Equal(t, []string{
		"https://example.com",
		"https://example.com#1",
		"https://example.com#2",
	}, gen.inputs)
	mockRepo.AssertExpectations(t)
}

func TestCreateURL_GenerationExhausted(t *testing.T) {
	service, mockRepo, gen := setupService(t, "always")
	service.maxAttempts = 4
	ctx := context.Background()

	mockRepo.On("Insert", mock.Anything, mock.AnythingOfType("*model.URL")).Return(repository.ErrCodeConflict)

	url, err := service.CreateURL(ctx, "https://example.com", "")

	assert.Nil(t, url)
	assert.ErrorIs(t, err, ErrGenerationExhausted)
	assert.Len(t, gen.inputs, 4)
	mockRepo.AssertNumberOfCalls(t, "Insert", 4)
}

func TestCreateURL_StoreErrorIsNotRetried(t *testing.T) {
	service, mockRepo, _ := setupService(t)
	ctx := context.Background()

	storeErr := errors.Join(repository.ErrStoreUnavailable, errors.New("connection refused"))
	mockRepo.On("Insert", mock.Anything, mock.AnythingOfType("*model.URL")).Return(storeErr).Once()

	_, err := service.CreateURL(ctx, "https://example.com", "")

	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
	mockRepo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestCreateURL_CustomCode(t *testing.T) {
	service, mockRepo, gen := setupService(t)
	ctx := context.Background()

	mockRepo.On("Insert", mock.Anything, mock.MatchedBy(func(u *model.URL) bool { return u.ShortCode == "mycode" })).
		Return(nil).Once()

	url, err := service.CreateURL(ctx, "https://example.com", "mycode")

	require.NoError(t, err)
	assert.Equal(t, "mycode", url.ShortCode)
	assert.Empty(t, gen.inputs, "custom codes bypass the generator")
	mockRepo.AssertExpectations(t)
}

func TestCreateURL_CustomCodeInUse(t *testing.T) {
	service, mockRepo, gen := setupService(t)
	ctx := context.Background()

	mockRepo.On("Insert", mock.Anything, mock.AnythingOfType("*model.URL")).Return(repository.ErrCodeConflict).Once()

	_, err := service.CreateURL(ctx, "https://example.com", "mycode")

	assert.ErrorIs(t, err, ErrCodeInUse)
	assert.Empty(t, gen.inputs)
	mockRepo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestCreateURL_InvalidInput(t *testing.T) {
	service, mockRepo, _ := setupService(t)
	ctx := context.Background()

	testCases := []struct {
		name     string
		url      string
		code     string
		expected error
	}{
		{"empty URL", "", "", ErrInvalidURL},
		{"no scheme", "example.com", "", ErrInvalidURL},
		{"invalid format", "not a valid url", "", ErrInvalidURL},
		{"missing host", "http://", "", ErrInvalidURL},
		{"unsupported scheme", "ftp://example.com/file", "", ErrInvalidURL},
		{"surrounding spaces", " https://example.com ", "", ErrInvalidURL},
		{"code too short", "https://example.com", "ab", ErrInvalidShortCode},
		{"code too long", "https://example.com", "abcdefghijk", ErrInvalidShortCode},
		{"code with symbols", "https://example.com", "ab-cd", ErrInvalidShortCode},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.CreateURL(ctx, tc.url, tc.code)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
	mockRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestGetURL(t *testing.T) {
	service, mockRepo, _ := setupService(t)
	ctx := context.Background()

	stored := &model.URL{ID: "1", ShortCode: "abc123", OriginalURL: "https://example.com", Clicks: 2}
	mockRepo.On("FindByCode", mock.Anything, "abc123").Return(stored, nil)
	mockRepo.On("FindByCode", mock.Anything, "nope").Return(nil, repository.ErrURLNotFound)

	url, err := service.GetURL(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, stored, url)

	_, err = service.GetURL(ctx, "nope")
	assert.ErrorIs(t, err, ErrURLNotFound)
	mockRepo.AssertNotCalled(t, "IncrementClicks", mock.Anything, mock.Anything)
}

func TestGetAllURLs_NeverNil(t *testing.T) {
	service, mockRepo, _ := setupService(t)

	mockRepo.On("FindAll", mock.Anything).Return(nil, nil).Once()

	urls, err := service.GetAllURLs(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, urls)
	assert.Empty(t, urls)
}

func TestGetAllURLs_StoreError(t *testing.T) {
	service, mockRepo, _ := setupService(t)

	mockRepo.On("FindAll", mock.Anything).Return(nil, repository.ErrStoreUnavailable).Once()

	_, err := service.GetAllURLs(context.Background())
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
}

func TestRedirectURL(t *testing.T) {
	service, mockRepo, _ := setupService(t)
	ctx := context.Background()

	mockRepo.On("IncrementClicks", mock.Anything, "abc123").
		Return(&model.URL{ShortCode: "abc123", Clicks: 1}, nil).Once()
	mockRepo.On("IncrementClicks", mock.Anything, "nope").
		Return(nil, repository.ErrURLNotFound).Once()

	url, err := service.RedirectURL(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), url.Clicks)

	_, err = service.RedirectURL(ctx, "nope")
	assert.ErrorIs(t, err, ErrURLNotFound)
	mockRepo.AssertExpectations(t)
}

func TestUpdateURL_Rename(t *testing.T) {
	service, mockRepo, _ := setupService(t)
	ctx := context.Background()

	current := &model.URL{ID: "1", ShortCode: "old123", OriginalURL: "https://example.com", Clicks: 3}
	renamed := &model.URL{ID: "1", ShortCode: "new123", OriginalURL: "https://example.com", Clicks: 3}

	mockRepo.On("FindByCode", mock.Anything, "old123").Return(current, nil).Once()
	mockRepo.On("FindByCode", mock.Anything, "new123").Return(nil, repository.ErrURLNotFound).Once()
	mockRepo.On("Update", mock.Anything, "old123", model.URLUpdate{ShortCode: strPtr("new123")}).
		Return(renamed, nil).Once()

	url, err := service.UpdateURL(ctx, "old123", nil, strPtr("new123"))

	require.NoError(t, err)
	assert.Equal(t, renamed, url)
	mockRepo.AssertExpectations(t)
}

func TestUpdateURL_CodeInUse(t *testing.T) {
	service, mockRepo, _ := setupService(t)
	ctx := context.Background()

	mockRepo.On("FindByCode", mock.Anything, "old123").Return(&model.URL{ID: "1", ShortCode: "old123"}, nil).Once()
	mockRepo.On("FindByCode", mock.Anything, "taken1").Return(&model.URL{ID: "2", ShortCode: "taken1"}, nil).Once()

	_, err := service.UpdateURL(ctx, "old123", strPtr("https://changed.com"), strPtr("taken1"))

	assert.ErrorIs(t, err, ErrCodeInUse)
	mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateURL_ConflictAtWrite(t *testing.T) {
	service, mockRepo, _ := setupService(t)
	ctx := context.Background()

	mockRepo.On("FindByCode", mock.Anything, "old123").Return(&model.URL{ID: "1", ShortCode: "old123"}, nil).Once()
	mockRepo.On("FindByCode", mock.Anything, "race01").Return(nil, repository.ErrURLNotFound).Once()
	mockRepo.On("Update", mock.Anything, "old123", mock.Anything).Return(nil, repository.ErrCodeConflict).Once()

	_, err := service.UpdateURL(ctx, "old123", nil, strPtr("race01"))

	assert.ErrorIs(t, err, ErrCodeInUse)
}

func TestUpdateURL_SameCodeIsNotARename(t *testing.T) {
	service, mockRepo, _ := setupService(t)
	ctx := context.Background()

	current := &model.URL{ID: "1", ShortCode: "abc123", OriginalURL: "https://example.com"}
	mockRepo.On("FindByCode", mock.Anything, "abc123").Return(current, nil).Once()
	mockRepo.On("Update", mock.Anything, "abc123", model.URLUpdate{OriginalURL: strPtr("https://new.com")}).
		Return(&model.URL{ID: "1", ShortCode: "abc123", OriginalURL: "https://new.com"}, nil).Once()

	url, err := service.UpdateURL(ctx, "abc123", strPtr("https://new.com"), strPtr("abc123"))

	require.NoError(t, err)
	assert.Equal(t, "https://new.com", url.OriginalURL)
	mockRepo.AssertExpectations(t)
}

func TestUpdateURL_NothingToChange(t *testing.T) {
	service, mockRepo, _ := setupService(t)
	ctx := context.Background()

	current := &model.URL{ID: "1", ShortCode: "abc123"}
	mockRepo.On("FindByCode", mock.Anything, "abc123").Return(current, nil).Twice()

	url, err := service.UpdateURL(ctx, "abc123", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, current, url)

	url, err = service.UpdateURL(ctx, "abc123", nil, strPtr("abc123"))
	require.NoError(t, err)
	assert.Equal(t, current, url)

	mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateURL_Errors(t *testing.T) {
	service, mockRepo, _ := setupService(t)
	ctx := context.Background()

	mockRepo.On("FindByCode", mock.Anything, "ghost1").Return(nil, repository.ErrURLNotFound)

	_, err := service.UpdateURL(ctx, "ghost1", strPtr("https://example.com"), nil)
	assert.ErrorIs(t, err, ErrURLNotFound)

	_, err = service.UpdateURL(ctx, "ghost1", strPtr("nope"), nil)
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = service.UpdateURL(ctx, "ghost1", nil, strPtr("x"))
	assert.ErrorIs(t, err, ErrInvalidShortCode)
}

func TestDeleteURL(t *testing.T) {
	service, mockRepo, _ := setupService(t)
	ctx := context.Background()

	mockRepo.On("DeleteByID", mock.Anything, "42").Return(int64(1), nil).Once()
	mockRepo.On("DeleteByID", mock.Anything, "43").Return(int64(0), repository.ErrURLNotFound).Once()

	result, err := service.DeleteURL(ctx, "42")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "URL with id 42 deleted successfully", result.Message)

	_, err = service.DeleteURL(ctx, "43")
	assert.ErrorIs(t, err, ErrURLNotFound)
}

func TestIsValidURL(t *testing.T) {
	testCases := []struct {
		url      string
		expected bool
	}{
		{"https://example.com", true},
		{"http://example.com/path?q=1#frag", true},
		{"HTTPS://EXAMPLE.COM", true},
		{"https://localhost:8080", true},
		{"", false},
		{"example.com", false},
		{"/relative/path", false},
		{"mailto:someone@example.com", false},
		{"javascript:alert(1)", false},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			assert.Equal(t, tc.expected, isValidURL(tc.url))
		})
	}
}
