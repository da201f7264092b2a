package matcher

import (
	"crypto/md5"
	"encoding/hex"

	"job-matcher-go/internal/constants"
	"job-matcher-go/internal/types"
)

// Fingerprint 计算岗位内容指纹
// 规则: MD5(规范化标题 | 规范化来源 | 规范化描述前200字符)
// 同一岗位被多个渠道重复抓取时，指纹保持一致
func Fingerprint(job *types.JobRecord) string {
	desc := NormalizeTerm(job.Description)
	if len(desc) > constants.FingerprintDescPrefixLen {
		desc = desc[:constants.FingerprintDescPrefixLen]
	}
	payload := NormalizeTerm(job.Title) + "|" + NormalizeTerm(job.Source) + "|" + desc
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// DedupeJobs 按内容指纹去重，保留首次出现的岗位，顺序稳定
// 对已去重的批次再次调用结果不变
func DedupeJobs(jobs []*types.JobRecord) []*types.JobRecord {
	seen := make(map[string]struct{}, len(jobs))
	out := make([]*types.JobRecord, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		fp := job.Fingerprint
		if fp == "" {
			fp = Fingerprint(job)
			job.Fingerprint = fp
		}
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, job)
	}
	return out
}
