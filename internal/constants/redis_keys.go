package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// JDModulePrefix JD模块
	JDModulePrefix = "jd"
	// ResumeModulePrefix 简历模块
	ResumeModulePrefix = "resume"

	// EntityRequirements JD结构化要求实体
	EntityRequirements = "requirements"
	// EntityVector 向量实体
	EntityVector = "vector"
	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"
	// EntityMD5ToResumeID MD5到简历ID的映射实体
	EntityMD5ToResumeID = "md5_to_resume_id"

	// KeyJDRequirements JD结构化要求缓存 (STRING, JSON)
	// 格式: app:jd:requirements:{jd_hash}:{model_version}
	KeyJDRequirements = AppPrefix + ":" + JDModulePrefix + ":" + EntityRequirements + ":%s:%s"

	// KeyJDVector JD向量缓存 (HASH)
	// 格式: app:jd:vector:{jd_hash}
	KeyJDVector = AppPrefix + ":" + JDModulePrefix + ":" + EntityVector + ":%s"

	// KeyResumeIngestLock 简历解析分布式锁 (STRING)
	// 格式: app:resume:lock:{resume_id}
	KeyResumeIngestLock = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityLock + ":%s"

	// KeyResumeFileMD5Set 简历原始文件MD5集合，用于上传去重 (SET)
	// 格式: app:resume:dedup_set
	KeyResumeFileMD5Set = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityDedupSet

	// KeyResumeMD5ToResumeID MD5到简历ID的映射 (STRING)
	// 格式: app:resume:md5_to_resume_id:{md5}
	KeyResumeMD5ToResumeID = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityMD5ToResumeID + ":%s"
)
