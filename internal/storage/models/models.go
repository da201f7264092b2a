package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Job 岗位信息表，摄取边界规范化后的最终形态
type Job struct {
	JobID       string         `gorm:"type:char(36);primaryKey"`
	Title       string         `gorm:"type:varchar(255);not null"`
	Description string         `gorm:"type:text;not null"`
	SkillsJSON  datatypes.JSON `gorm:"type:json"` // 规范化后的技能列表
	Category    string         `gorm:"type:varchar(100);index:idx_jobs_category"`
	PostedDate  *time.Time     `gorm:"type:datetime(6);index:idx_jobs_posted_date"` // 可空
	Source      string         `gorm:"type:varchar(100)"`
	Fingerprint string         `gorm:"type:char(32);not null;uniqueIndex:idx_jobs_fingerprint_unique"` // 内容指纹，去重依据
	Status      string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_jobs_status"`
	CreatedAt   time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt   time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// ResumeProfile 简历画像表
type ResumeProfile struct {
	ResumeID         string         `gorm:"type:char(36);primaryKey"`
	RawText          string         `gorm:"type:text"`
	SkillsJSON       datatypes.JSON `gorm:"type:json"`
	OriginalFilePath string         `gorm:"type:varchar(1024)"` // MinIO中原始文件路径
	RawTextMD5       string         `gorm:"type:char(32);index:idx_rp_raw_text_md5"`
	CreatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (ResumeProfile) TableName() string {
	return "resume_profiles"
}

// MatchSnapshot 匹配结果快照表
// 每次匹配请求写入一批快照行，同一(简历,岗位)对以最近一次结果为准
type MatchSnapshot struct {
	SnapshotID         uint64         `gorm:"primaryKey;autoIncrement"`
	ResumeID           string         `gorm:"type:char(36);not null;index:idx_ms_resume_id;uniqueIndex:idx_ms_resume_job_unique,priority:1"`
	JobID              string         `gorm:"type:char(36);not null;uniqueIndex:idx_ms_resume_job_unique,priority:2"`
	Rank               int            `gorm:"column:match_rank;not null"` // rank是MySQL 8保留字，列名避开
	SemanticSimilarity float64        `gorm:"type:double;not null"`
	KeywordOverlap     float64        `gorm:"type:double;not null"`
	RecencyWeight      float64        `gorm:"type:double;not null"`
	PopularityScore    float64        `gorm:"type:double;not null"`
	FinalScore         float64        `gorm:"type:double;not null;index:idx_ms_resume_score,priority:2"`
	MissingSkillsJSON  datatypes.JSON `gorm:"type:json"`
	MatchedSkillsJSON  datatypes.JSON `gorm:"type:json"`
	MatchedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Job *Job `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (MatchSnapshot) TableName() string {
	return "match_snapshots"
}

// StringSliceToJSON 将字符串切片序列化为datatypes.JSON
func StringSliceToJSON(values []string) (datatypes.JSON, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// JSONToStringSlice 从datatypes.JSON反序列化字符串切片
func JSONToStringSlice(data datatypes.JSON) ([]string, error) {
	if len(data) == 0 {
		return []string{}, nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}
