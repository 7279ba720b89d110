package common

const (
	RedisStreamPipelineTrigger = "pipeline.trigger.dispatch"

	RedisStreamGroup    = "pipeline-group"
	RedisStreamConsumer = "pipeline-consumer"
)
