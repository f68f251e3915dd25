package models

// LockInLevel buckets the lock-in score: strong at >= 70, moderate at
// >= 40, none below.
type LockInLevel string

const (
	LockInNone     LockInLevel = "none"
	LockInModerate LockInLevel = "moderate"
	LockInStrong   LockInLevel = "strong"
)

// LockInMetrics is the heuristic 0-100 measure of how embedded an owner
// is in the recorded institutional memory and integrations. Recomputed
// on demand over the current calendar month; never persisted.
type LockInMetrics struct {
	OwnerID                  string      `json:"user_id"`
	FailurePatternCount      int         `json:"failure_pattern_count"`
	PatternMatchFrequency    int         `json:"pattern_match_frequency"`
	PreventionRuleApplies    int         `json:"prevention_rule_applications"`
	CrossProjectPatternUsage int         `json:"cross_project_pattern_usage"`
	DailyUsageFrequency      int         `json:"daily_usage_frequency"`
	IDEIntegrationUsage      int         `json:"ide_integration_usage"`
	CICDIntegrationUsage     int         `json:"cicd_integration_usage"`
	GuaranteeDependency      int         `json:"guarantee_dependency"`
	LockInScore              int         `json:"lock_in_score"`
	LockInLevel              LockInLevel `json:"lock_in_level"`
}

// ChurnRiskLevel buckets the churn risk score: low at <= 30, medium at
// <= 60, high above.
type ChurnRiskLevel string

const (
	ChurnLow    ChurnRiskLevel = "low"
	ChurnMedium ChurnRiskLevel = "medium"
	ChurnHigh   ChurnRiskLevel = "high"
)

// ChurnIndicators flags the individual disengagement signals.
type ChurnIndicators struct {
	LowUsage               bool `json:"low_usage"`
	NoGuaranteeDependency  bool `json:"no_guarantee_dependency"`
	NoIntegrationUsage     bool `json:"no_integration_usage"`
	LowPatternAccumulation bool `json:"low_pattern_accumulation"`
}

// ChurnPredictionMetrics inverts the lock-in ladder into a 0-100 churn
// risk score; higher means more likely to churn.
type ChurnPredictionMetrics struct {
	OwnerID        string          `json:"user_id"`
	ChurnRiskScore int             `json:"churn_risk_score"`
	ChurnRiskLevel ChurnRiskLevel  `json:"churn_risk_level"`
	Indicators     ChurnIndicators `json:"indicators"`
}

// InfrastructureStatus grades how load-bearing the scanner has become
// for an owner's deployment pipeline.
type InfrastructureStatus string

const (
	InfraNone     InfrastructureStatus = "none"
	InfraModerate InfrastructureStatus = "moderate"
	InfraStrong   InfrastructureStatus = "strong"
)

// InfrastructureSignals summarizes monthly blocking activity.
type InfrastructureSignals struct {
	OwnerID               string               `json:"user_id"`
	DeploymentBlocks      int                  `json:"deployment_blocks"`
	FailurePreventionRate int                  `json:"failure_prevention_rate"`
	ComplianceChecks      int                  `json:"compliance_checks"`
	AuditLogQueries       int                  `json:"audit_log_queries"`
	InfrastructureStatus  InfrastructureStatus `json:"infrastructure_status"`
}

// MemoryValue prices the accumulated institutional memory in dollars
// for retention analytics.
type MemoryValue struct {
	OwnerID                string `json:"user_id"`
	FailurePatternsValue   int    `json:"failure_patterns_value"`
	SuccessPatternsValue   int    `json:"success_patterns_value"`
	AuditTrailsValue       int    `json:"audit_trails_value"`
	TotalValue             int    `json:"total_value"`
	EstimatedSwitchingCost int    `json:"estimated_switching_cost"`
}
