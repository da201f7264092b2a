package processor

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-matcher-go/internal/config"
	"job-matcher-go/internal/matcher"
	"job-matcher-go/internal/types"
)

type fakeProfileStore struct {
	saved    map[string]*types.ResumeProfile
	saveErr  error
	lastPath string
	lastMD5  string
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{saved: make(map[string]*types.ResumeProfile)}
}

func (f *fakeProfileStore) SaveResumeProfile(ctx context.Context, profile *types.ResumeProfile, filePath, rawTextMD5 string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[profile.ResumeID] = profile
	f.lastPath = filePath
	f.lastMD5 = rawTextMD5
	return nil
}

func (f *fakeProfileStore) GetResumeProfile(ctx context.Context, resumeID string) (*types.ResumeProfile, error) {
	p, ok := f.saved[resumeID]
	if !ok {
		return nil, errors.New("简历不存在")
	}
	return p, nil
}

func (f *fakeProfileStore) GetResumeFilePath(ctx context.Context, resumeID string) (string, error) {
	if _, ok := f.saved[resumeID]; !ok {
		return "", errors.New("简历不存在")
	}
	return f.lastPath, nil
}

func (f *fakeProfileStore) DeleteResumeProfile(ctx context.Context, resumeID string) (string, error) {
	if _, ok := f.saved[resumeID]; !ok {
		return "", errors.New("简历不存在")
	}
	delete(f.saved, resumeID)
	return f.lastPath, nil
}

type fakeVectorCache struct {
	resumeVectors map[string][]float64
	jobVectors    map[string][]float64
	setCalls      int
}

func newFakeVectorCache() *fakeVectorCache {
	return &fakeVectorCache{
		resumeVectors: make(map[string][]float64),
		jobVectors:    make(map[string][]float64),
	}
}

func (f *fakeVectorCache) GetJobVector(ctx context.Context, jobID string) ([]float64, bool, error) {
	v, ok := f.jobVectors[jobID]
	return v, ok, nil
}

func (f *fakeVectorCache) SetJobVector(ctx context.Context, jobID string, vector []float64) error {
	f.jobVectors[jobID] = vector
	f.setCalls++
	return nil
}

func (f *fakeVectorCache) GetResumeVector(ctx context.Context, resumeID string) ([]float64, bool, error) {
	v, ok := f.resumeVectors[resumeID]
	return v, ok, nil
}

func (f *fakeVectorCache) SetResumeVector(ctx context.Context, resumeID string, vector []float64) error {
	f.resumeVectors[resumeID] = vector
	f.setCalls++
	return nil
}

type fixedEmbedder struct {
	vector []float64
	err    error
	calls  int
}

func (f *fixedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fixedEmbedder) Dimensions() int { return len(f.vector) }

func TestProcessUpload(t *testing.T) {
	store := newFakeProfileStore()
	cache := newFakeVectorCache()
	emb := &fixedEmbedder{vector: []float64{0.1, 0.2, 0.3}}
	proc := NewResumeProcessor(emb, store, nil, cache, config.DefaultMatcherConfig())

	profile, err := proc.ProcessUpload(context.Background(), &UploadRequest{
		ResumeID: "r1",
		RawText:  "golang developer with mysql experience",
		Skills:   []string{"Go", "MySQL", "go"},
	})
	require.NoError(t, err, "合法提交不应失败")

	assert.Equal(t, "r1", profile.ResumeID, "应保留指定的简历ID")
	assert.Equal(t, []string{"go", "mysql"}, profile.Skills, "技能应规范化去重")
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, profile.Embedding, "向量应被预计算")
	assert.Contains(t, store.saved, "r1", "画像应被持久化")
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, cache.resumeVectors["r1"], "向量应写入缓存")
}

func TestProcessUploadGeneratesID(t *testing.T) {
	store := newFakeProfileStore()
	proc := NewResumeProcessor(&fixedEmbedder{vector: []float64{1}}, store, nil, nil, config.DefaultMatcherConfig())

	profile, err := proc.ProcessUpload(context.Background(), &UploadRequest{RawText: "some resume"})
	require.NoError(t, err, "合法提交不应失败")
	assert.Len(t, profile.ResumeID, 36, "缺失ID时应生成UUID")
}

func TestProcessUploadRejectsEmpty(t *testing.T) {
	proc := NewResumeProcessor(&fixedEmbedder{vector: []float64{1}}, newFakeProfileStore(), nil, nil, config.DefaultMatcherConfig())

	_, err := proc.ProcessUpload(context.Background(), &UploadRequest{RawText: "   "})
	assert.ErrorIs(t, err, matcher.ErrEmptyResume, "空简历应被拒绝")
}

func TestProcessUploadEmbeddingFailureDoesNotBlock(t *testing.T) {
	store := newFakeProfileStore()
	emb := &fixedEmbedder{err: matcher.ErrEmbeddingUnavailable}
	proc := NewResumeProcessor(emb, store, nil, nil, config.DefaultMatcherConfig())

	profile, err := proc.ProcessUpload(context.Background(), &UploadRequest{ResumeID: "r1", RawText: "resume"})
	require.NoError(t, err, "向量计算失败不应阻断简历提交")
	assert.Empty(t, profile.Embedding, "失败时向量应为空")
	assert.Contains(t, store.saved, "r1", "画像仍应被持久化")
}

type fakeObjectStorage struct {
	uploaded map[string][]byte
	deleted  []string
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{uploaded: make(map[string][]byte)}
}

func (f *fakeObjectStorage) UploadResumeFile(ctx context.Context, resumeID, fileExt string, reader io.Reader, fileSize int64) (string, string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", "", err
	}
	object := resumeID + "/original" + fileExt
	f.uploaded[object] = data
	return "resumes/" + object, "md5-" + resumeID, nil
}

func (f *fakeObjectStorage) GetResumeFile(ctx context.Context, objectName string) ([]byte, error) {
	data, ok := f.uploaded[objectName]
	if !ok {
		return nil, errors.New("对象不存在")
	}
	return data, nil
}

func (f *fakeObjectStorage) GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if _, ok := f.uploaded[objectName]; !ok {
		return "", errors.New("对象不存在")
	}
	return "http://minio.local/resumes/" + objectName + "?sig=test", nil
}

func (f *fakeObjectStorage) DeleteFile(ctx context.Context, objectName string) error {
	delete(f.uploaded, objectName)
	f.deleted = append(f.deleted, objectName)
	return nil
}

func TestProcessUploadStoresOriginalFile(t *testing.T) {
	store := newFakeProfileStore()
	files := newFakeObjectStorage()
	proc := NewResumeProcessor(&fixedEmbedder{vector: []float64{1}}, store, files, nil, config.DefaultMatcherConfig())

	_, err := proc.ProcessUpload(context.Background(), &UploadRequest{
		ResumeID: "r1",
		RawText:  "resume",
		File:     strings.NewReader("%PDF-1.4 fake"),
		FileExt:  ".pdf",
		FileSize: 13,
	})
	require.NoError(t, err, "带文件的提交不应失败")

	assert.Equal(t, "resumes/r1/original.pdf", store.lastPath, "画像应记录文件存储路径")
	assert.Contains(t, files.uploaded, "r1/original.pdf", "原始文件应被上传")
}

func TestOriginalFileRoundTrip(t *testing.T) {
	store := newFakeProfileStore()
	files := newFakeObjectStorage()
	proc := NewResumeProcessor(&fixedEmbedder{vector: []float64{1}}, store, files, nil, config.DefaultMatcherConfig())

	_, err := proc.ProcessUpload(context.Background(), &UploadRequest{
		ResumeID: "r1",
		RawText:  "resume",
		File:     strings.NewReader("content"),
		FileExt:  ".txt",
		FileSize: 7,
	})
	require.NoError(t, err, "提交不应失败")

	data, err := proc.OriginalFile(context.Background(), "r1")
	require.NoError(t, err, "读取原始文件不应失败")
	assert.Equal(t, []byte("content"), data, "应返回上传的文件内容")

	url, err := proc.OriginalFileURL(context.Background(), "r1", time.Minute)
	require.NoError(t, err, "生成预签名URL不应失败")
	assert.Contains(t, url, "r1/original.txt", "URL应指向该简历的对象")
}

func TestOriginalFileWithoutUpload(t *testing.T) {
	store := newFakeProfileStore()
	store.saved["r1"] = &types.ResumeProfile{ResumeID: "r1", RawText: "resume"}
	proc := NewResumeProcessor(&fixedEmbedder{vector: []float64{1}}, store, newFakeObjectStorage(), nil, config.DefaultMatcherConfig())

	_, err := proc.OriginalFile(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrNoOriginalFile, "未上传过文件时应返回专用错误")

	procNoFiles := NewResumeProcessor(&fixedEmbedder{vector: []float64{1}}, store, nil, nil, config.DefaultMatcherConfig())
	_, err = procNoFiles.OriginalFileURL(context.Background(), "r1", time.Minute)
	assert.ErrorIs(t, err, ErrFileStorageDisabled, "对象存储未配置时应返回专用错误")
}

func TestDeleteResumeRemovesFile(t *testing.T) {
	store := newFakeProfileStore()
	files := newFakeObjectStorage()
	proc := NewResumeProcessor(&fixedEmbedder{vector: []float64{1}}, store, files, nil, config.DefaultMatcherConfig())

	_, err := proc.ProcessUpload(context.Background(), &UploadRequest{
		ResumeID: "r1",
		RawText:  "resume",
		File:     strings.NewReader("content"),
		FileExt:  ".txt",
		FileSize: 7,
	})
	require.NoError(t, err, "提交不应失败")

	require.NoError(t, proc.DeleteResume(context.Background(), "r1"), "删除不应失败")
	assert.NotContains(t, store.saved, "r1", "画像应被删除")
	assert.Equal(t, []string{"r1/original.txt"}, files.deleted, "原始文件应被清理")
}

func TestLoadProfileUsesCache(t *testing.T) {
	store := newFakeProfileStore()
	store.saved["r1"] = &types.ResumeProfile{ResumeID: "r1", RawText: "resume", Skills: []string{"go"}}

	cache := newFakeVectorCache()
	cache.resumeVectors["r1"] = []float64{9, 9, 9}

	emb := &fixedEmbedder{vector: []float64{1, 1, 1}}
	proc := NewResumeProcessor(emb, store, nil, cache, config.DefaultMatcherConfig())

	profile, err := proc.LoadProfile(context.Background(), "r1")
	require.NoError(t, err, "读取画像不应失败")
	assert.Equal(t, []float64{9, 9, 9}, profile.Embedding, "缓存命中时应复用缓存向量")
	assert.Equal(t, 0, emb.calls, "缓存命中时不应调用embedding")
}
