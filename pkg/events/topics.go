package events

import "fmt"

type TopicBuilder struct {
	domainID  string
	channelID string
}

func NewTopicBuilder(domainID, channelID string) *TopicBuilder {
	return &TopicBuilder{
		domainID:  domainID,
		channelID: channelID,
	}
}

func (tb *TopicBuilder) BaseTopic() string {
	return fmt.Sprintf("m/%s/c/%s", tb.domainID, tb.channelID)
}

// CycleTopic is where lifecycle events of a model's cycles are published.
func (tb *TopicBuilder) CycleTopic(modelID string, t Type) string {
	return fmt.Sprintf("%s/fl/models/%s/cycles/%s", tb.BaseTopic(), modelID, t)
}

// CycleTopics matches every cycle event of every model.
func (tb *TopicBuilder) CycleTopics() string {
	return tb.BaseTopic() + "/fl/models/+/cycles/+"
}

// WorkerMetricsTopic carries worker network measurements.
func (tb *TopicBuilder) WorkerMetricsTopic() string {
	return tb.BaseTopic() + "/fl/workers/metrics"
}

func (tb *TopicBuilder) CoordinatorStatusTopic() string {
	return tb.BaseTopic() + "/control/coordinator/status"
}
