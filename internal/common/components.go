package common

const (
	ComponentIngestor   = "ingestor"
	ComponentCheckpoint = "checkpoint-store"
	ComponentDecoder    = "event-decoder"
	ComponentListener   = "intent-listener"
	ComponentExecutor   = "intent-executor"
	ComponentRPC        = "rpc-client"
)

var AllComponents = map[string]struct{}{
	ComponentIngestor:   {},
	ComponentCheckpoint: {},
	ComponentDecoder:    {},
	ComponentListener:   {},
	ComponentExecutor:   {},
	ComponentRPC:        {},
}
