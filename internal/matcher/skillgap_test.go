package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"job-matcher-go/internal/types"
)

func TestAnalyzeGap(t *testing.T) {
	resume := &types.ResumeProfile{
		ResumeID: "r1",
		Skills:   []string{"Python", "sql"},
	}
	job := &types.JobRecord{
		JobID:     "j1",
		RawSkills: []string{"python", "SQL", "AWS"},
	}

	gap := AnalyzeGap(resume, job)

	assert.Equal(t, "j1", gap.JobID, "报告应携带岗位ID")
	assert.Equal(t, []string{"aws"}, gap.MissingSkills, "缺失技能应为岗位技能减简历技能")
	assert.Equal(t, []string{"python", "sql"}, gap.MatchedSkills, "已匹配技能应为交集且按字典序排序")
}

func TestAnalyzeGapNoRequirements(t *testing.T) {
	resume := &types.ResumeProfile{ResumeID: "r1", Skills: []string{"go"}}
	job := &types.JobRecord{JobID: "j1"}

	gap := AnalyzeGap(resume, job)
	assert.Empty(t, gap.MissingSkills, "岗位无技能要求时缺失列表应为空")
	assert.Empty(t, gap.MatchedSkills, "岗位无技能要求时匹配列表应为空")
}

func TestAnalyzeGapEmptyResumeSkills(t *testing.T) {
	resume := &types.ResumeProfile{ResumeID: "r1"}
	job := &types.JobRecord{JobID: "j1", RawSkills: []string{"Rust", "go"}}

	gap := AnalyzeGap(resume, job)
	assert.Equal(t, []string{"go", "rust"}, gap.MissingSkills, "简历无技能时所有岗位技能均为缺失")
	assert.Empty(t, gap.MatchedSkills, "简历无技能时匹配列表应为空")
}
