package matcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-matcher-go/internal/types"
)

func TestFingerprintStable(t *testing.T) {
	job1 := &types.JobRecord{
		Title:       "Backend Engineer",
		Source:      "linkedin",
		Description: "We are looking for a Go developer.",
	}
	job2 := &types.JobRecord{
		Title:       "  backend   engineer ",
		Source:      "LinkedIn",
		Description: "we are looking for a go developer.",
	}

	assert.Equal(t, Fingerprint(job1), Fingerprint(job2), "规范化后内容相同的岗位指纹应一致")
	assert.Len(t, Fingerprint(job1), 32, "MD5指纹应为32位十六进制字符串")
}

func TestFingerprintDescriptionPrefix(t *testing.T) {
	long := strings.Repeat("a", 300)
	job1 := &types.JobRecord{Title: "DevOps", Source: "indeed", Description: long + "tail-one"}
	job2 := &types.JobRecord{Title: "DevOps", Source: "indeed", Description: long + "tail-two"}

	assert.Equal(t, Fingerprint(job1), Fingerprint(job2), "描述前200字符相同的岗位指纹应一致")

	job3 := &types.JobRecord{Title: "DevOps", Source: "indeed", Description: "short desc"}
	assert.NotEqual(t, Fingerprint(job1), Fingerprint(job3), "描述不同的岗位指纹应不同")
}

func TestDedupeJobs(t *testing.T) {
	jobs := []*types.JobRecord{
		{JobID: "j1", Title: "Backend Engineer", Source: "linkedin", Description: "go service"},
		{JobID: "j2", Title: "Data Engineer", Source: "indeed", Description: "spark pipeline"},
		{JobID: "j3", Title: "Backend Engineer", Source: "LinkedIn", Description: "Go Service"},
	}

	deduped := DedupeJobs(jobs)
	require.Len(t, deduped, 2, "内容重复的岗位应被去除")
	assert.Equal(t, "j1", deduped[0].JobID, "应保留首次出现的岗位")
	assert.Equal(t, "j2", deduped[1].JobID, "非重复岗位顺序应保持稳定")

	// 幂等性：对已去重的批次再次去重结果不变
	again := DedupeJobs(deduped)
	assert.Equal(t, deduped, again, "去重操作应当幂等")
}

func TestDedupeJobsEmpty(t *testing.T) {
	assert.Empty(t, DedupeJobs(nil), "空批次去重应返回空结果")
	assert.Empty(t, DedupeJobs([]*types.JobRecord{nil}), "nil岗位应被忽略")
}
