package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// MatchModulePrefix 匹配模块
	MatchModulePrefix = "match"
	// JobModulePrefix 岗位模块
	JobModulePrefix = "job"
	// ResumeModulePrefix 简历模块
	ResumeModulePrefix = "resume"

	// EntitySession 匹配会话实体
	EntitySession = "session"
	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityVector 向量实体
	EntityVector = "vector"

	// KeyMatchSession 匹配结果会话缓存 (ZSET)
	// 格式: app:match:session:{resumeID}
	KeyMatchSession = AppPrefix + ":" + MatchModulePrefix + ":" + EntitySession + ":%s"

	// KeyMatchLock 匹配分布式锁 (STRING)
	// 格式: app:match:lock:{resumeID}
	KeyMatchLock = AppPrefix + ":" + MatchModulePrefix + ":" + EntityLock + ":%s"

	// KeyJobVector 岗位描述向量缓存 (HASH)
	// 格式: app:job:vector:{jobID}
	KeyJobVector = AppPrefix + ":" + JobModulePrefix + ":" + EntityVector + ":%s"

	// KeyResumeVector 简历向量缓存 (HASH)
	// 格式: app:resume:vector:{resumeID}
	KeyResumeVector = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityVector + ":%s"
)
