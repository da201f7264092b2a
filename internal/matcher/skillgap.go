package matcher

import (
	"sort"

	"job-matcher-go/internal/types"
)

// AnalyzeGap 计算岗位要求技能与简历技能的差集报告
// 比较口径为规范化后的精确匹配，输出按字典序排序保证结果稳定
func AnalyzeGap(resume *types.ResumeProfile, job *types.JobRecord) *types.SkillGapReport {
	resumeTerms := TermSet(resume.Skills)

	missing := make([]string, 0)
	matched := make([]string, 0)
	for _, skill := range NormalizeTerms(job.RawSkills) {
		if _, ok := resumeTerms[skill]; ok {
			matched = append(matched, skill)
		} else {
			missing = append(missing, skill)
		}
	}
	sort.Strings(missing)
	sort.Strings(matched)

	return &types.SkillGapReport{
		JobID:         job.JobID,
		MissingSkills: missing,
		MatchedSkills: matched,
	}
}
