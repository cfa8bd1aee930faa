package queue

const (
	TypeIndexRun          = "index:run"
	TypeMigrationBackfill = "migration:backfill"
	TypeMigrationCleanup  = "migration:cleanup"
	TypeCCPPrune          = "ccp:prune"
)

type IndexRunPayload struct {
	CCPID    string `json:"ccp_id"`
	OnDemand bool   `json:"on_demand"`
}

type MigrationBackfillPayload struct {
	ModelID string `json:"model_id"`
}

type MigrationCleanupPayload struct {
	ModelID string `json:"model_id"`
}

type CCPPrunePayload struct {
	CCPID string `json:"ccp_id"`
}
